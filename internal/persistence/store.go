package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/config"
)

// Store is the opened ticket database for the configured driver. Exactly one
// of Postgres and SQLite is set.
type Store struct {
	Driver   string
	Postgres *Postgres
	SQLite   *SQLite
}

// OpenStore connects to the database selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StorageConfig, pgCfg config.PostgresConfig, logger *zap.Logger) (*Store, error) {
	switch cfg.Driver {
	case config.StorageDriverPostgres:
		pg, err := NewPostgres(ctx, pgCfg, logger)
		if err != nil {
			return nil, err
		}
		return &Store{Driver: cfg.Driver, Postgres: pg}, nil
	case config.StorageDriverSQLite:
		sq, err := NewSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &Store{Driver: cfg.Driver, SQLite: sq}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Migrate applies the embedded migrations for the store's driver.
func (s *Store) Migrate(ctx context.Context, logger *zap.Logger) error {
	if s.Postgres != nil {
		return RunPostgresMigrations(ctx, s.Postgres.PoolHandle(), logger)
	}
	return RunSQLiteMigrations(ctx, s.SQLite.DB, logger)
}

// Ping checks the underlying database.
func (s *Store) Ping(ctx context.Context) error {
	if s.Postgres != nil {
		return s.Postgres.Ping(ctx)
	}
	return s.SQLite.Ping(ctx)
}

// Close releases the underlying handle.
func (s *Store) Close() {
	if s.Postgres != nil {
		s.Postgres.Close()
	}
	if s.SQLite != nil {
		s.SQLite.Close()
	}
}
