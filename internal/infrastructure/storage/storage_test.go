package storage

import (
	"path/filepath"
	"testing"

	"MediaRadar/internal/config"
)

func TestOpenDrivers(t *testing.T) {
	dir := t.TempDir()
	cases := []config.StorageConfig{
		{Driver: config.DriverMemory},
		{Driver: config.DriverSQLite, Path: filepath.Join(dir, "sqlite", "radar.db")},
		{Driver: config.DriverBolt, Path: filepath.Join(dir, "bolt", "radar.bolt")},
	}
	for _, cfg := range cases {
		repo, err := Open(cfg)
		if err != nil {
			t.Fatalf("Open(%s): %v", cfg.Driver, err)
		}
		if err := repo.Close(); err != nil {
			t.Fatalf("Close(%s): %v", cfg.Driver, err)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(config.StorageConfig{Driver: "postgres"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
