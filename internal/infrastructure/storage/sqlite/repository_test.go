package sqlite

import (
	"path/filepath"
	"testing"

	"MediaRadar/internal/infrastructure/storage/storagetest"
	"MediaRadar/internal/ports"
)

func TestRepositoryConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) ports.Repository {
		repo, err := Open(filepath.Join(t.TempDir(), "mediaradar.db"))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return repo
	})
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenInMemory(t *testing.T) {
	repo, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer repo.Close()
}
