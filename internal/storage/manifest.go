package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ptsplit/internal/domain"
)

// JSONManifestStore keeps the manifest in a single JSON file.
// Writes are atomic (temp file + fsync + rename + dir sync) so a crash never leaves a torn manifest.
type JSONManifestStore struct {
	path string
}

// NewJSONManifestStore returns a ManifestStore backed by the file at path
func NewJSONManifestStore(path string) *JSONManifestStore {
	return &JSONManifestStore{path: path}
}

// Path returns the manifest file path
func (s *JSONManifestStore) Path() string {
	return s.path
}

func (s *JSONManifestStore) Load() (*domain.Manifest, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoManifest
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var m domain.Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", s.path, err)
	}
	return &m, nil
}

func (s *JSONManifestStore) Save(manifest *domain.Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func (s *JSONManifestStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove manifest: %w", err)
	}
	return nil
}

// MemoryManifestStore keeps the manifest in memory, for tests.
type MemoryManifestStore struct {
	mu       sync.Mutex
	manifest *domain.Manifest
	saves    int
	// FailSave makes Save return this error when set
	FailSave error
	// FailRemove makes Remove return this error when set
	FailRemove error
}

// NewMemoryManifestStore returns an empty in-memory store, optionally seeded with a manifest
func NewMemoryManifestStore(seed *domain.Manifest) *MemoryManifestStore {
	s := &MemoryManifestStore{}
	if seed != nil {
		s.manifest = seed.Clone()
	}
	return s
}

func (s *MemoryManifestStore) Load() (*domain.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manifest == nil {
		return nil, ErrNoManifest
	}
	return s.manifest.Clone(), nil
}

func (s *MemoryManifestStore) Save(manifest *domain.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSave != nil {
		return s.FailSave
	}
	s.manifest = manifest.Clone()
	s.saves++
	return nil
}

func (s *MemoryManifestStore) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailRemove != nil {
		return s.FailRemove
	}
	s.manifest = nil
	return nil
}

// Saves returns how many times Save succeeded
func (s *MemoryManifestStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	// Some filesystems do not support fsync on directories.
	_ = d.Sync()
	return nil
}
