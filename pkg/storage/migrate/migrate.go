// Package migrate applies the embedded goose migrations of the SQL datastores.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pressly/goose/v3"

	"github.com/openfga/recordrelay/assets"
	"github.com/openfga/recordrelay/pkg/logger"
	"github.com/openfga/recordrelay/pkg/storage/mysql"
	"github.com/openfga/recordrelay/pkg/storage/postgres"
	"github.com/openfga/recordrelay/pkg/storage/sqlite"
)

// MigrationConfig contains the configuration needed for running migrations.
type MigrationConfig struct {
	Engine        string
	URI           string
	TargetVersion uint
	Timeout       time.Duration
	Verbose       bool
	Username      string
	Password      string
	Logger        logger.Logger
}

type engine struct {
	driver     string
	dialect    goose.Dialect
	dir        string
	prepareDSN func(cfg MigrationConfig) (string, error)
}

var engines = map[string]engine{
	"sqlite": {
		driver:  "sqlite",
		dialect: goose.DialectSQLite3,
		dir:     assets.SqliteMigrationDir,
		prepareDSN: func(cfg MigrationConfig) (string, error) {
			return sqlite.PrepareDSN(cfg.URI)
		},
	},
	"postgres": {
		driver:  "pgx",
		dialect: goose.DialectPostgres,
		dir:     assets.PostgresMigrationDir,
		prepareDSN: func(cfg MigrationConfig) (string, error) {
			return postgres.PrepareDSN(cfg.URI, cfg.Username, cfg.Password)
		},
	},
	"mysql": {
		driver:  "mysql",
		dialect: goose.DialectMySQL,
		dir:     assets.MySQLMigrationDir,
		prepareDSN: func(cfg MigrationConfig) (string, error) {
			return mysql.PrepareDSN(cfg.URI, cfg.Username, cfg.Password)
		},
	},
}

// SupportedEngines lists the engines RunMigrations accepts, besides "memory".
func SupportedEngines() []string {
	return []string{"sqlite", "postgres", "mysql"}
}

// RunMigrations migrates the datastore up to TargetVersion, or to the latest
// migration when TargetVersion is zero, and returns the resulting schema version.
// Migrating to a version lower than the current one rolls migrations back.
func RunMigrations(ctx context.Context, cfg MigrationConfig) (int64, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}

	if cfg.Engine == "memory" {
		cfg.Logger.Info("no migrations to run for `memory` datastore")
		return 0, nil
	}

	provider, db, err := newProvider(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get %s db version: %w", cfg.Engine, err)
	}
	cfg.Logger.Info("current schema version", logger.String("engine", cfg.Engine), logger.Int64("version", current))

	target := int64(cfg.TargetVersion)
	switch {
	case target == 0:
		_, err = provider.Up(ctx)
	case target < current:
		_, err = provider.DownTo(ctx, target)
	case target > current:
		_, err = provider.UpTo(ctx, target)
	default:
		cfg.Logger.Info("nothing to migrate", logger.String("engine", cfg.Engine))
		return current, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to run %s migrations: %w", cfg.Engine, err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get %s db version: %w", cfg.Engine, err)
	}
	cfg.Logger.Info("migration done", logger.String("engine", cfg.Engine), logger.Int64("version", version))

	return version, nil
}

// CurrentVersion returns the schema version the datastore is at.
func CurrentVersion(ctx context.Context, cfg MigrationConfig) (int64, error) {
	if cfg.Engine == "memory" {
		return 0, nil
	}

	provider, db, err := newProvider(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return provider.GetDBVersion(ctx)
}

func newProvider(ctx context.Context, cfg MigrationConfig) (*goose.Provider, *sql.DB, error) {
	e, ok := engines[cfg.Engine]
	if !ok {
		return nil, nil, fmt.Errorf("no migrations for engine: %s", cfg.Engine)
	}

	uri, err := e.prepareDSN(cfg)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open(e.driver, uri)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s connection: %w", cfg.Engine, err)
	}

	policy := backoff.NewExponentialBackOff()
	if cfg.Timeout > 0 {
		policy.MaxElapsedTime = cfg.Timeout
	}
	err = backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to initialize %s connection: %w", cfg.Engine, err)
	}

	migrations, err := fs.Sub(assets.EmbedMigrations, e.dir)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	provider, err := goose.NewProvider(e.dialect, db, migrations,
		goose.WithDisableGlobalRegistry(true),
		goose.WithVerbose(cfg.Verbose),
	)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return provider, db, nil
}
