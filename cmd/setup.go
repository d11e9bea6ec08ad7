package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/cardtpl/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the local database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	m, closeDB, err := r.migrator()
	if err != nil {
		return err
	}
	defer closeDB()

	applied, err := m.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", r.config.Database.Path)
	if len(applied) == 0 {
		return r.writePlain("✓ Database is up to date\n")
	}
	return r.writePlain("✓ Applied %d migrations\n", len(applied))
}

// SetupStatus lists the schema migrations and whether each has been applied.
func (r *Runner) SetupStatus(ctx context.Context, cmd *cli.Command) error {
	m, closeDB, err := r.migrator()
	if err != nil {
		return err
	}
	defer closeDB()

	states, err := m.Status(ctx)
	if err != nil {
		return err
	}

	r.writePlainHeader(fmt.Sprintf("Migrations (%s)", r.config.Database.Path))
	for _, st := range states {
		mark := "pending"
		if st.Applied {
			mark = "applied"
		}
		r.writePlain("%04d %-20s %s\n", st.Version, st.Name, mark)
	}
	return nil
}

// SetupRollback reverts the most recent migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	m, closeDB, err := r.migrator()
	if err != nil {
		return err
	}
	defer closeDB()

	rolled, err := m.Down(ctx)
	if err != nil {
		return err
	}

	r.logger.Warn("migration rolled back", "version", rolled.Version, "name", rolled.Name)
	return r.writePlain("✓ Rolled back %04d_%s\n", rolled.Version, rolled.Name)
}

// migrator opens the configured database without migrating it.
func (r *Runner) migrator() (*shared.Migrator, func(), error) {
	cfg := r.config.Database
	if cfg.Path == "" {
		return nil, nil, fmt.Errorf("%w: database.path is empty", shared.ErrMissingConfig)
	}
	r.logger.Debug("opening database", "path", cfg.Path)

	db, err := shared.NewDatabase(cfg.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database: %w", err)
	}
	shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)

	m, err := shared.NewMigrator(db, r.logger)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return m, func() { db.Close() }, nil
}

// SetupConfig writes the embedded default configuration to disk.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if path == "" {
		path = cmd.String("config")
	}
	if path == "" {
		return fmt.Errorf("%w: --output", shared.ErrMissingArgument)
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	r.logger.Info("config file created", "path", path)
	r.writePlain("✓ Configuration written to %s\n", path)
	r.writePlain("Next steps:\n")
	r.writePlain("1. Set client.base_url and client.token\n")
	r.writePlain("2. Run 'cardtpl setup database' to create the local database\n")
	return nil
}
