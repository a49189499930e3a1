package core

import (
	"context"
	"fmt"
	"strings"

	"resourcesync/internal/config"
	"resourcesync/internal/infra/persistence/memory"
	"resourcesync/internal/infra/persistence/postgres"
	"resourcesync/internal/infra/persistence/sqlite"
	"resourcesync/pkg/domain"
)

// StorageDriver identifies a concrete document store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// ClosableStore is a document store owning external resources.
type ClosableStore interface {
	domain.DocumentStore
	Close() error
}

// OpenDocumentStore selects a backend from configuration. An empty driver
// means memory.
func OpenDocumentStore(ctx context.Context, cfg config.StorageConfig) (ClosableStore, error) {
	driver := StorageDriver(strings.ToLower(strings.TrimSpace(cfg.Driver)))
	if driver == "" {
		driver = StorageMemory
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
