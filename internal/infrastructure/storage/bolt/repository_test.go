package bolt

import (
	"path/filepath"
	"testing"

	"MediaRadar/internal/infrastructure/storage/storagetest"
	"MediaRadar/internal/ports"
)

func TestRepositoryConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) ports.Repository {
		repo, err := Open(filepath.Join(t.TempDir(), "nested", "mediaradar.bolt"))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return repo
	})
}
