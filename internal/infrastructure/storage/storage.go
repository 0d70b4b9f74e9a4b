// Package storage opens the repository selected by configuration.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"MediaRadar/internal/config"
	"MediaRadar/internal/infrastructure/storage/bolt"
	"MediaRadar/internal/infrastructure/storage/memory"
	"MediaRadar/internal/infrastructure/storage/sqlite"
	"MediaRadar/internal/ports"
)

// Open returns a ready repository for cfg.Driver. The caller owns Close.
func Open(cfg config.StorageConfig) (ports.Repository, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		if cfg.Path != ":memory:" {
			if err := ensureDir(cfg.Path); err != nil {
				return nil, err
			}
		}
		repo, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		return repo, nil
	case config.DriverBolt:
		repo, err := bolt.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open bolt storage: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create storage directory: %w", err)
	}
	return nil
}
