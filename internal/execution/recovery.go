package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"ptsplit/internal/domain"
	"ptsplit/internal/storage"
)

// ErrRunInProgress is returned when the manifest belongs to a host process that is still alive
var ErrRunInProgress = errors.New("another run is in progress")

// RecoveryReport describes what a recovery scan cleaned up
type RecoveryReport struct {
	RunID    string
	Found    bool
	Killed   []domain.WorkerEntry // Still running and terminated
	Reaped   []domain.WorkerEntry // Already gone
	Released []domain.ResourceHandle
	Errors   []error

	// Cleanup left these behind: workers that survived a failed kill and
	// resources whose release failed. They are no longer in the manifest.
	StillRunning []domain.WorkerEntry
	Unreleased   []domain.ResourceHandle

	// Entries still persisted in the manifest after the scan
	LiveWorkers   int
	LiveResources int
}

// Clean reports whether every entry was cleaned without error
func (r *RecoveryReport) Clean() bool {
	return len(r.Errors) == 0
}

// Recovery cleans up after a run that ended without removing its manifest
type Recovery struct {
	store    storage.ManifestStore
	procs    ProcessTable
	releaser Releaser
	logger   *slog.Logger

	// IgnoreHost skips the check that the recorded host process is gone
	IgnoreHost bool
}

// NewRecovery creates a Recovery
func NewRecovery(store storage.ManifestStore, procs ProcessTable, releaser Releaser, logger *slog.Logger) *Recovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recovery{store: store, procs: procs, releaser: releaser, logger: logger}
}

// Scan kills the stale workers and releases the stale resources listed in the
// manifest, then removes it. Cleanup is best effort: every entry is attempted
// once, failures are logged and reported, and the manifest is removed anyway.
func (r *Recovery) Scan(ctx context.Context) (*RecoveryReport, error) {
	report := &RecoveryReport{}

	m, err := r.store.Load()
	if errors.Is(err, storage.ErrNoManifest) {
		return report, nil
	}
	if err != nil {
		r.logger.Warn("discarding unreadable manifest", "error", err)
		report.Errors = append(report.Errors, err)
		if err := r.store.Remove(); err != nil {
			return report, fmt.Errorf("failed to remove unreadable manifest: %w", err)
		}
		return report, nil
	}

	report.RunID = m.RunID
	report.Found = true
	log := r.logger.With("run_id", m.RunID)

	if !r.IgnoreHost && m.HostPID > 0 && m.HostPID != os.Getpid() && r.procs.Alive(m.HostPID) {
		return report, fmt.Errorf("%w: run %s owned by pid %d", ErrRunInProgress, m.RunID, m.HostPID)
	}

	log.Info("recovering stale run", "workers", len(m.Workers), "resources", len(m.Resources))

	for _, w := range m.Workers {
		if !r.procs.Alive(w.PID) {
			report.Reaped = append(report.Reaped, w)
			continue
		}
		err := r.procs.Kill(w.PID)
		if errors.Is(err, ErrProcessGone) {
			log.Warn("no worker process group under pid, not killing", "worker", w.Index, "pid", w.PID)
			report.Reaped = append(report.Reaped, w)
			continue
		}
		if err != nil {
			log.Warn("failed to kill stale worker", "worker", w.Index, "pid", w.PID, "error", err)
			report.Errors = append(report.Errors, fmt.Errorf("kill worker %d (pid %d): %w", w.Index, w.PID, err))
			if r.procs.Alive(w.PID) {
				report.StillRunning = append(report.StillRunning, w)
			}
			continue
		}
		log.Info("killed stale worker", "worker", w.Index, "pid", w.PID)
		report.Killed = append(report.Killed, w)
	}

	for _, h := range m.Resources {
		if err := r.release(ctx, h); err != nil {
			log.Warn("failed to release stale resource", "resource", h.Name, "error", err)
			report.Errors = append(report.Errors, fmt.Errorf("release %s: %w", h.Name, err))
			report.Unreleased = append(report.Unreleased, h)
			continue
		}
		log.Info("released stale resource", "resource", h.Name)
		report.Released = append(report.Released, h)
	}

	if err := r.store.Remove(); err != nil {
		report.LiveWorkers = len(m.Workers)
		report.LiveResources = len(m.Resources)
		return report, fmt.Errorf("failed to remove manifest: %w", err)
	}
	if left, err := r.store.Load(); err == nil {
		report.LiveWorkers = len(left.Workers)
		report.LiveResources = len(left.Resources)
	}
	return report, nil
}

func (r *Recovery) release(ctx context.Context, h domain.ResourceHandle) error {
	if r.releaser == nil || h.Primary {
		return nil
	}
	return r.releaser.Release(ctx, h)
}
