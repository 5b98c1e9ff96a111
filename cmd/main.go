package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/peicollabeducacaoinclusiva-gif/peicollab/access"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/audit"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/config"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/database"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/logging"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/routes"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/store"
	"github.com/peicollabeducacaoinclusiva-gif/peicollab/tokens"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.AppEnv)
	defer log.Sync() //nolint:errcheck

	db := database.Connect(cfg)

	recorder := audit.NewRecorder(db, log, cfg.AuditQueueSize, cfg.AuditRetryMax, cfg.AuditRetryBackoff)
	engine := access.NewEngine()
	dir := access.NewDirectory(db)
	st := store.New(db, recorder, cfg.LockTimeout)
	ts := tokens.NewService(db, recorder, cfg.MaxTokenTTL)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORS())

	routes.Register(e, routes.Deps{
		DB:     db,
		Config: cfg,
		Store:  st,
		Engine: engine,
		Dir:    dir,
		Tokens: ts,
		Audit:  recorder,
	})

	go func() {
		addr := ":" + cfg.AppPort
		log.Info("server listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			log.Warn("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
	// drain the audit queue before the process exits
	recorder.Close()
}
