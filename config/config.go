package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort string
	AppEnv  string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret string

	MaxTokenTTL       time.Duration // upper bound for family token ttl
	LockTimeout       time.Duration // per-student write lock acquisition bound
	AuditQueueSize    int
	AuditRetryMax     int
	AuditRetryBackoff time.Duration
}

func get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppPort: get("APP_PORT", "8080"),
		AppEnv:  get("APP_ENV", "dev"),

		DBHost:     get("DB_HOST", "localhost"),
		DBPort:     get("DB_PORT", "5432"),
		DBUser:     get("DB_USER", "postgres"),
		DBPassword: get("DB_PASSWORD", "postgres"),
		DBName:     get("DB_NAME", "peicollab"),
		DBSSLMode:  get("DB_SSLMODE", "disable"),

		JWTSecret: get("JWT_SECRET", "dev-secret"),

		MaxTokenTTL:       getDuration("MAX_TOKEN_TTL", 7*24*time.Hour),
		LockTimeout:       getDuration("LOCK_TIMEOUT", 5*time.Second),
		AuditQueueSize:    getInt("AUDIT_QUEUE_SIZE", 1024),
		AuditRetryMax:     getInt("AUDIT_RETRY_MAX", 3),
		AuditRetryBackoff: getDuration("AUDIT_RETRY_BACKOFF", 200*time.Millisecond),
	}
}

func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode,
	)
}
