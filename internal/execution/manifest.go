package execution

import (
	"fmt"
	"os"
	"sync"
	"time"

	"ptsplit/internal/domain"
	"ptsplit/internal/storage"
)

// Tracker keeps the run manifest current. Every mutation is persisted before
// the call returns.
type Tracker struct {
	mu       sync.Mutex
	store    storage.ManifestStore
	manifest *domain.Manifest
}

// NewTracker creates a Tracker persisting through store
func NewTracker(store storage.ManifestStore) *Tracker {
	return &Tracker{store: store}
}

// Begin creates and persists the manifest of a new run
func (t *Tracker) Begin(runID string, workers int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.manifest = &domain.Manifest{
		RunID:       runID,
		WorkerCount: workers,
		HostPID:     os.Getpid(),
		CreatedAt:   time.Now().UTC(),
		Workers:     []domain.WorkerEntry{},
		Resources:   []domain.ResourceHandle{},
	}
	return t.saveLocked()
}

// WorkerStarted records a worker pid
func (t *Tracker) WorkerStarted(index, pid int) error {
	return t.update(func(m *domain.Manifest) {
		m.AddWorker(domain.WorkerEntry{Index: index, PID: pid, StartedAt: time.Now().UTC()})
	})
}

// WorkerFinished drops a reaped worker
func (t *Tracker) WorkerFinished(index int) error {
	return t.update(func(m *domain.Manifest) { m.RemoveWorker(index) })
}

// ResourceAcquired records a resource that must be released
func (t *Tracker) ResourceAcquired(h domain.ResourceHandle) error {
	if h.Primary {
		return nil
	}
	return t.update(func(m *domain.Manifest) { m.AddResource(h) })
}

// ResourceReleased drops a released resource
func (t *Tracker) ResourceReleased(h domain.ResourceHandle) error {
	if h.Primary {
		return nil
	}
	return t.update(func(m *domain.Manifest) { m.RemoveResource(h) })
}

// Close removes the manifest when nothing is outstanding. Otherwise the
// manifest stays for the next recovery scan.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.manifest == nil {
		return nil
	}
	if n := t.manifest.Outstanding(); n > 0 {
		return fmt.Errorf("manifest kept with %d outstanding entries", n)
	}
	if err := t.store.Remove(); err != nil {
		return fmt.Errorf("failed to remove manifest: %w", err)
	}
	t.manifest = nil
	return nil
}

// Snapshot returns a copy of the current manifest, or nil before Begin
func (t *Tracker) Snapshot() *domain.Manifest {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.manifest == nil {
		return nil
	}
	return t.manifest.Clone()
}

func (t *Tracker) update(fn func(m *domain.Manifest)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.manifest == nil {
		return fmt.Errorf("manifest not started")
	}
	fn(t.manifest)
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	if err := t.store.Save(t.manifest); err != nil {
		return fmt.Errorf("failed to persist manifest: %w", err)
	}
	return nil
}
