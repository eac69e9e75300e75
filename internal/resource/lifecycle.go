// Package resource acquires and releases per-worker scratch resources.
package resource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"ptsplit/internal/domain"
)

// Provisioner duplicates and drops scratch resources by name
type Provisioner interface {
	Duplicate(ctx context.Context, name string) error
	// Drop must succeed when the resource is already gone.
	Drop(ctx context.Context, name string) error
}

// NameFunc names the resource of a worker within a run
type NameFunc func(runID string, workerIndex int) string

// Lifecycle hands out one resource per worker. Worker 0 reuses the canonical
// resource; every other worker gets a private duplicate.
type Lifecycle struct {
	provisioner Provisioner
	name        NameFunc
	logger      *slog.Logger

	mu       sync.Mutex
	released map[string]bool
}

// NewLifecycle creates a Lifecycle
func NewLifecycle(provisioner Provisioner, name NameFunc, logger *slog.Logger) *Lifecycle {
	if provisioner == nil {
		provisioner = NoopProvisioner{}
	}
	return &Lifecycle{
		provisioner: provisioner,
		name:        name,
		logger:      logger,
		released:    make(map[string]bool),
	}
}

// Handle returns the handle a worker gets, without acquiring anything
func (l *Lifecycle) Handle(runID string, workerIndex int) domain.ResourceHandle {
	return domain.ResourceHandle{
		RunID:       runID,
		WorkerIndex: workerIndex,
		Name:        l.name(runID, workerIndex),
		Primary:     workerIndex == 0,
	}
}

// Acquire returns the handle of a worker, duplicating the canonical resource for
// every index other than 0
func (l *Lifecycle) Acquire(ctx context.Context, runID string, workerIndex int) (domain.ResourceHandle, error) {
	h := l.Handle(runID, workerIndex)
	if h.Primary {
		return h, nil
	}

	l.logger.Debug("duplicating resource", "run_id", runID, "worker", workerIndex, "resource", h.Name)
	if err := l.provisioner.Duplicate(ctx, h.Name); err != nil {
		// A half-made copy is still ours to drop.
		if dropErr := l.provisioner.Drop(ctx, h.Name); dropErr != nil {
			l.logger.Warn("drop after failed duplicate", "run_id", runID, "worker", workerIndex, "resource", h.Name, "error", dropErr)
		}
		return h, fmt.Errorf("duplicate resource %s for worker %d: %w", h.Name, workerIndex, err)
	}

	l.mu.Lock()
	delete(l.released, h.Key())
	l.mu.Unlock()
	return h, nil
}

// Acquisition is the outcome of acquiring one worker's resource
type Acquisition struct {
	Handle domain.ResourceHandle
	Err    error
}

// AcquireAll acquires resources for workers 0..count-1, at most limit at a time
// (limit < 1 means unbounded). A failure only affects its own worker.
func (l *Lifecycle) AcquireAll(ctx context.Context, runID string, count, limit int) []Acquisition {
	out := make([]Acquisition, count)
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < count; i++ {
		i := i
		g.Go(func() error {
			h, err := l.Acquire(gctx, runID, i)
			out[i] = Acquisition{Handle: h, Err: err}
			if err != nil {
				l.logger.Error("acquire resource", "run_id", runID, "worker", i, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Release drops a worker's resource. It is idempotent, a no-op for primary
// handles, and does not depend on the owning process still being alive.
func (l *Lifecycle) Release(ctx context.Context, h domain.ResourceHandle) error {
	if h.Primary {
		return nil
	}

	l.mu.Lock()
	done := l.released[h.Key()]
	l.mu.Unlock()
	if done {
		return nil
	}

	if err := l.provisioner.Drop(ctx, h.Name); err != nil {
		return fmt.Errorf("release resource %s: %w", h.Name, err)
	}

	l.mu.Lock()
	l.released[h.Key()] = true
	l.mu.Unlock()
	l.logger.Debug("released resource", "run_id", h.RunID, "worker", h.WorkerIndex, "resource", h.Name)
	return nil
}

// NoopProvisioner is used when no canonical resource is configured
type NoopProvisioner struct{}

func (NoopProvisioner) Duplicate(context.Context, string) error { return nil }
func (NoopProvisioner) Drop(context.Context, string) error      { return nil }
