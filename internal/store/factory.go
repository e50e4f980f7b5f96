package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/stacklok/content-mirror/internal/config"
)

// New creates the store selected by cfg.Type
func New(ctx context.Context, cfg *config.StorageConfig) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config cannot be nil")
	}

	switch cfg.GetType() {
	case config.StorageTypeMemory:
		slog.Info("Creating in-memory store")
		return NewMemoryStore(), nil

	case config.StorageTypeFile:
		path, err := cfg.GetPath()
		if err != nil {
			return nil, err
		}
		slog.Info("Creating file store", "path", path)
		fs, err := NewFileStore(path)
		if err != nil {
			return nil, err
		}
		return fs, nil

	case config.StorageTypeSQLite:
		path, err := cfg.GetPath()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		slog.Info("Opening sqlite store", "path", path)
		db, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return db, nil

	case config.StorageTypePostgres:
		if cfg.Database == nil {
			return nil, fmt.Errorf("database configuration is required for postgres storage")
		}
		connString, err := cfg.Database.GetConnectionString()
		if err != nil {
			return nil, fmt.Errorf("failed to build connection string: %w", err)
		}
		slog.Info("Opening postgres store",
			"host", cfg.Database.Host,
			"database", cfg.Database.Database,
			"max_conns", cfg.Database.MaxOpenConns)
		pg, err := OpenPostgres(ctx, connString, cfg.Database.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		return pg, nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.GetType())
	}
}
