package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ptsplit/internal/domain"
	"ptsplit/internal/parser"
)

// ErrNoWorkerStarted is returned when not a single worker process could be started
var ErrNoWorkerStarted = errors.New("no worker process could be started")

// Releaser releases a worker's resource once the worker is reaped
type Releaser interface {
	Release(ctx context.Context, h domain.ResourceHandle) error
}

// Assignment is everything one worker needs
type Assignment struct {
	Index        int
	Items        domain.Slice
	Handle       domain.ResourceHandle
	AcquireErr   error // The worker does not start when its resource could not be acquired
	Env          []string
	LogPath      string
	FailuresPath string
}

// Options configures a Supervisor
type Options struct {
	Launcher Launcher
	Tracker  *Tracker
	Releaser Releaser
	Parser   parser.Parser
	Dir      string
	// Stagger delays the start of worker i by i*Stagger
	Stagger time.Duration
	Logger  *slog.Logger
	// OnFinish is called once per worker as it reaches a terminal state. Calls are serialized.
	OnFinish func(domain.WorkerResult)
}

// Supervisor starts one process per slice and waits for all of them
type Supervisor struct {
	opts Options
	mu   sync.Mutex // serializes OnFinish
}

// NewSupervisor creates a Supervisor
func NewSupervisor(opts Options) *Supervisor {
	if opts.Parser == nil {
		opts.Parser = parser.NewRSpecParser()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Supervisor{opts: opts}
}

// Run starts every assignment and blocks until all workers are terminal. A
// failing worker never stops its siblings. Results are in assignment order.
func (s *Supervisor) Run(ctx context.Context, runID string, assignments []Assignment) ([]domain.WorkerResult, error) {
	results := make([]domain.WorkerResult, len(assignments))

	var wg sync.WaitGroup
	for i, a := range assignments {
		wg.Add(1)
		go func(i int, a Assignment) {
			defer wg.Done()
			results[i] = s.runWorker(ctx, runID, a)
			s.finish(results[i])
		}(i, a)
	}
	wg.Wait()

	started := 0
	for _, r := range results {
		if r.PID > 0 {
			started++
		}
	}
	if len(assignments) > 0 && started == 0 {
		return results, ErrNoWorkerStarted
	}
	return results, nil
}

func (s *Supervisor) runWorker(ctx context.Context, runID string, a Assignment) domain.WorkerResult {
	log := s.opts.Logger.With("run_id", runID, "worker", a.Index)
	result := domain.WorkerResult{
		Index:    a.Index,
		State:    domain.StatePending,
		Items:    a.Items,
		Resource: a.Handle.Name,
		LogPath:  a.LogPath,
	}

	if a.AcquireErr != nil {
		log.Error("resource not acquired, worker skipped", "error", a.AcquireErr)
		return s.abort(result, fmt.Sprintf("acquire resource: %v", a.AcquireErr))
	}
	defer s.release(ctx, log, a.Handle)

	if delay := s.opts.Stagger * time.Duration(a.Index); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return s.abort(result, "interrupted before start")
		case <-timer.C:
		}
	}

	result.StartedAt = time.Now()
	proc, err := s.opts.Launcher.Start(ctx, Invocation{
		WorkerIndex: a.Index,
		Items:       a.Items,
		Env:         a.Env,
		Dir:         s.opts.Dir,
		LogPath:     a.LogPath,
	})
	if err != nil {
		log.Error("worker failed to start", "error", err)
		return s.abort(result, fmt.Sprintf("start worker: %v", err))
	}

	result.PID = proc.PID()
	result.State = domain.StateRunning
	if err := s.opts.Tracker.WorkerStarted(a.Index, result.PID); err != nil {
		log.Error("worker not recorded in manifest", "pid", result.PID, "error", err)
	}
	log.Debug("worker started", "pid", result.PID, "items", len(a.Items))

	status, waitErr := proc.Wait()
	result.Duration = time.Since(result.StartedAt)

	switch {
	case waitErr != nil:
		result.State = domain.StateCrashed
		result.ExitCode = -1
		result.Error = waitErr.Error()
	case status.Signaled:
		result.State = domain.StateCrashed
		result.ExitCode = -1
		result.Signal = status.Signal
	default:
		result.State = domain.StateCompleted
		result.ExitCode = status.Code
	}

	result.Examples, result.ExampleFailures, result.Counted = parser.ReadCounts(s.opts.Parser, a.LogPath)
	result.Failures = parser.Collect(s.opts.Parser, a.Index, a.Items, a.LogPath, a.FailuresPath)
	for i := range result.Failures {
		result.Failures[i].ExitCode = result.ExitCode
	}
	switch {
	case result.State == domain.StateCrashed:
		result.Failures = append(result.Failures, crashRecord(result))
	case result.ExitCode != 0 && len(result.Failures) == 0:
		result.Failures = append(result.Failures, domain.FailureRecord{
			WorkerIndex: a.Index,
			Detail:      fmt.Sprintf("exit status %d", result.ExitCode),
			ExitCode:    result.ExitCode,
		})
	}

	if err := s.opts.Tracker.WorkerFinished(a.Index); err != nil {
		log.Error("worker not removed from manifest", "pid", result.PID, "error", err)
	}
	log.Info("worker finished",
		"pid", result.PID,
		"state", result.State,
		"exit_code", result.ExitCode,
		"failures", len(result.Failures),
		"duration", result.Duration.Round(time.Millisecond),
	)
	return result
}

// abort marks a worker that never ran as crashed
func (s *Supervisor) abort(result domain.WorkerResult, reason string) domain.WorkerResult {
	result.State = domain.StateCrashed
	result.ExitCode = -1
	result.Error = reason
	result.Failures = []domain.FailureRecord{crashRecord(result)}
	return result
}

func crashRecord(result domain.WorkerResult) domain.FailureRecord {
	detail := result.Error
	if result.Signal != "" {
		detail = "signal: " + result.Signal
	}
	return domain.FailureRecord{
		WorkerIndex: result.Index,
		Detail:      "worker crashed: " + detail,
		ExitCode:    result.ExitCode,
		Crash:       true,
	}
}

// release frees a reaped worker's resource. A failed release stays in the
// manifest so the next recovery scan retries it.
func (s *Supervisor) release(ctx context.Context, log *slog.Logger, h domain.ResourceHandle) {
	if s.opts.Releaser == nil || h.Name == "" {
		return
	}
	if err := s.opts.Releaser.Release(context.WithoutCancel(ctx), h); err != nil {
		log.Warn("resource release failed, left for recovery", "resource", h.Name, "error", err)
		return
	}
	if err := s.opts.Tracker.ResourceReleased(h); err != nil {
		log.Error("released resource not removed from manifest", "resource", h.Name, "error", err)
	}
}

func (s *Supervisor) finish(result domain.WorkerResult) {
	if s.opts.OnFinish == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.OnFinish(result)
}
