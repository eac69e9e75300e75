package storage

import (
	"errors"

	"ptsplit/internal/config"
	"ptsplit/internal/domain"
)

// ErrNoManifest is returned by ManifestStore.Load when no manifest is persisted
var ErrNoManifest = errors.New("no run manifest")

// Storage persists and loads run reports (e.g. for the failures viewer).
type Storage interface {
	Save(report *domain.RunReport) error
	Load() (*domain.RunReport, error)
}

// ManifestStore persists the crash-recovery manifest of the current run.
type ManifestStore interface {
	// Load returns ErrNoManifest when nothing is persisted.
	Load() (*domain.Manifest, error)
	Save(manifest *domain.Manifest) error
	// Remove deletes the manifest; removing a missing manifest is not an error.
	Remove() error
}

// JSONStorage stores run reports in a JSON file under the configured state dir.
type JSONStorage struct {
	cfg *config.Config
}

// NewJSONStorage returns a Storage that reads/writes the config's report path.
func NewJSONStorage(cfg *config.Config) *JSONStorage {
	return &JSONStorage{cfg: cfg}
}
