package core

import (
	"context"
	"fmt"
	"os"
	"strings"

	"familytree/internal/infra/persistence/memory"
	"familytree/internal/infra/persistence/postgres"
	"familytree/internal/infra/persistence/sqlite"
	"familytree/pkg/domain"
)

// StorageDriver names a record store backend.
type StorageDriver string

const (
	// StorageMemory keeps records in process memory only.
	StorageMemory StorageDriver = "memory"
	// StorageSQLite persists records to a local SQLite file.
	StorageSQLite StorageDriver = "sqlite"
	// StoragePostgres persists records to a Postgres database.
	StoragePostgres StorageDriver = "postgres"
)

// Environment variables read by OpenPersistentStore.
const (
	EnvStorageDriver = "FAMILYTREE_STORAGE_DRIVER"
	EnvSQLitePath    = "FAMILYTREE_SQLITE_PATH"
	EnvPostgresDSN   = "FAMILYTREE_POSTGRES_DSN"
)

// StoreOption configures the in-memory core shared by every record store.
type StoreOption = memory.Option

// WithRuleLogging sends rule warnings of committed writes to logger.
func WithRuleLogging(logger Logger) StoreOption {
	return memory.WithViolationHandler(ViolationLogger(logger))
}

// PersistentStore is a record store that owns external resources.
type PersistentStore interface {
	domain.RecordStore
	Close() error
}

// OpenPersistentStore selects a record store from the environment.
//
//	FAMILYTREE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	FAMILYTREE_SQLITE_PATH: database file (default familytree.db)
//	FAMILYTREE_POSTGRES_DSN: connection string (default local familytree db)
func OpenPersistentStore(ctx context.Context, engine *domain.RulesEngine, opts ...StoreOption) (PersistentStore, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	driver := StorageDriver(strings.ToLower(strings.TrimSpace(os.Getenv(EnvStorageDriver))))
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine, opts...), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(os.Getenv(EnvSQLitePath), engine, opts...)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, os.Getenv(EnvPostgresDSN), engine, opts...)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
