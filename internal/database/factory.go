package database

import (
	"fmt"
	"os"
	"path/filepath"

	"cas-go/internal/cas"
	"cas-go/internal/config"
)

// NewDatabaseFromConfig creates a Database implementation based on the database config type.
// Each tenant gets its own SQLite file.
func NewDatabaseFromConfig(cfg config.DatabaseConfig, tenantID string) (cas.Database, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if tenantID == "" {
			return nil, fmt.Errorf("tenant_id required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return open(filepath.Join(cfg.DataDir, tenantID+".db"))
	case "memory":
		return open(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// open avoids returning a typed nil inside the interface on failure.
func open(path string) (cas.Database, error) {
	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}
