package database

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/config"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/models"
)

var DB *gorm.DB

func Connect(cfg *config.Config) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	DB = db

	if err := Migrate(db); err != nil {
		log.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

// Migrate creates or updates the schema. Shared with tests, which run it
// against an in-memory database.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Tenant{},
		&models.Principal{},
		&models.Student{},
		&models.Enrollment{},
		&models.StaffAssignment{},
		&models.FamilyLink{},
		&models.PEIVersion{},
		&models.AuditEntry{},
		&models.AccessToken{},
	)
}
