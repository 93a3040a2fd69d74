// Package common provides shared bootstrap for the CLI commands:
// configuration loading, logger setup, and database wiring.
package common

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sitewatch/sitewatch/internal/config"
	"github.com/sitewatch/sitewatch/internal/database"
	"github.com/sitewatch/sitewatch/internal/logger"
)

// Deps bundles the dependencies every command needs.
type Deps struct {
	Cfg *config.Config
	Log logger.Interface
	DB  *sqlx.DB

	Jobs    *database.JobRepository
	Runs    *database.RunRepository
	Content *database.ContentRepository
}

// Build loads configuration, creates the logger, connects to the
// database and ensures the schema exists.
func Build(ctx context.Context, cfgFile string, debug bool) (*Deps, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if debug {
		cfg.Logger.Level = "debug"
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := database.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Deps{
		Cfg:     cfg,
		Log:     log,
		DB:      db,
		Jobs:    database.NewJobRepository(db),
		Runs:    database.NewRunRepository(db),
		Content: database.NewContentRepository(db),
	}, nil
}

// Close releases held resources.
func (d *Deps) Close() {
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Log.Error("failed to close database", "error", err)
		}
	}
}
