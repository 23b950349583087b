package core

import (
	"context"
	"fmt"
	"platecore/internal/blob"
	"platecore/internal/infra/persistence/blobsnap"
	"platecore/internal/infra/persistence/memory"
	"platecore/internal/infra/persistence/postgres"
	"platecore/internal/infra/persistence/sqlite"
	"platecore/pkg/domain"
)

// StorageDriver identifies a concrete snapshot storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageBlob     StorageDriver = "blob"     // YAML documents in a blob store
)

// StorageConfig selects and parameterises the snapshot backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	Blob        blob.Config
	// BlobKeep is how many snapshot documents the blob driver retains.
	BlobKeep int
}

// OpenSnapshotStore opens the backend named by cfg.Driver, defaulting to sqlite.
func OpenSnapshotStore(ctx context.Context, cfg StorageConfig) (domain.SnapshotStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		s, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case StoragePostgres:
		ps, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return ps, nil
	case StorageBlob:
		blobs, err := blob.Open(ctx, cfg.Blob)
		if err != nil {
			return nil, err
		}
		var opts []blobsnap.Option
		if cfg.BlobKeep != 0 {
			opts = append(opts, blobsnap.WithKeep(cfg.BlobKeep))
		}
		return blobsnap.New(blobs, opts...), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
