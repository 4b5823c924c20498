// Package app wires the quota system together: configuration, logging,
// database, stores, driver, engine and the expiry sweeper.
package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/lijhnihaoa/blockquota/internal/config"
	"github.com/lijhnihaoa/blockquota/internal/db"
	"github.com/lijhnihaoa/blockquota/internal/logging"
	"github.com/lijhnihaoa/blockquota/internal/quota"
	"github.com/lijhnihaoa/blockquota/internal/sources"
	"github.com/lijhnihaoa/blockquota/internal/store"
)

// App holds the assembled quota components.
type App struct {
	Config  config.Config
	Store   *store.Store
	Driver  *quota.DBQuotaDriver
	Engine  *quota.Engine
	Sweeper *quota.Sweeper
}

// Migrate opens the database named by the config file and runs
// migrations.
func Migrate(_ context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// New loads configuration, opens the database and assembles the quota
// engine with its database-backed components.
func New(configPath string) (*App, error) {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return nil, errLoad
	}
	logging.Setup(cfg.Logging)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return nil, errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return nil, fmt.Errorf("app: migrate: %w", errMigrate)
	}

	st := store.New(conn)
	sources.RegisterSyncs(st, &cfg)

	driver := quota.NewDBQuotaDriver(&cfg, st, st)
	engine := quota.NewEngine(&cfg, driver, sources.NewCatalog(conn), st)

	return &App{
		Config:  cfg,
		Store:   st,
		Driver:  driver,
		Engine:  engine,
		Sweeper: quota.NewSweeper(engine, 0),
	}, nil
}

// Run assembles the application and keeps the expiry sweeper running
// until ctx is cancelled.
func Run(ctx context.Context, configPath string) error {
	application, errNew := New(configPath)
	if errNew != nil {
		return errNew
	}
	application.Sweeper.Start(ctx)
	log.Info("quota engine ready")
	<-ctx.Done()
	return ctx.Err()
}
