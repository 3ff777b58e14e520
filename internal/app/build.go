// Package app wires the phased data build: schema migrations, the critical
// reference set, and optionally the debug data set.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fleetline/internal/config"
	"fleetline/internal/engine"
	"fleetline/internal/migrate"
	"fleetline/internal/repo"
	"fleetline/internal/seed"
)

type BuildOptions struct {
	// Debug installs the development data set after the critical set.
	Debug bool
	// DataDir overrides embedded seed files by name.
	DataDir string
	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time
}

// Build brings a database to a runnable state. The phases run in order and
// the build stops at the first failure; a missing critical set after the
// insert phase is fatal.
func Build(ctx context.Context, db *sql.DB, cfg *config.Config, log *zap.Logger, opts BuildOptions) error {
	if log == nil {
		log = zap.NewNop()
	}
	if err := migrate.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	version, err := migrate.Version(db)
	if err != nil {
		return err
	}
	log.Info("schema ready", zap.Int("version", version))

	r := repo.Repo{DB: db}
	crit := seed.Critical{Repo: r, Log: log, Now: opts.Now}
	if err := crit.Insert(ctx); err != nil {
		return fmt.Errorf("install critical data: %w", err)
	}
	if err := crit.Verify(ctx); err != nil {
		return err
	}
	log.Info("critical data verified")

	if !opts.Debug {
		return nil
	}
	eng := engine.New(db, cfg, log)
	if opts.Now != nil {
		eng.Now = opts.Now
	}
	dbg := seed.Debug{
		Repo:   r,
		Engine: eng,
		Source: seed.Source{DataDir: opts.DataDir},
		Log:    log,
		Now:    opts.Now,
	}
	if err := dbg.Run(ctx); err != nil {
		return err
	}
	log.Info("debug data installed")
	return nil
}
