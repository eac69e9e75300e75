// Package run drives one parallel run from planning to the final report.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"ptsplit/internal/config"
	"ptsplit/internal/cost"
	"ptsplit/internal/discovery"
	"ptsplit/internal/domain"
	"ptsplit/internal/execution"
	"ptsplit/internal/partition"
	"ptsplit/internal/report"
	"ptsplit/internal/resource"
	"ptsplit/internal/storage"
)

// SetupError aborts a run before or instead of producing item-level results
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return "setup failed: " + e.Err.Error()
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

func setupError(format string, args ...any) error {
	return &SetupError{Err: fmt.Errorf(format, args...)}
}

// IsSetupError reports whether err aborted the run at the supervisor level
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

// NodeSource yields the current node's items and their recorded durations
type NodeSource interface {
	NodeTests() ([]string, error)
	Durations() map[string]float64
}

// Dependencies wires a Controller
type Dependencies struct {
	Config    *config.Config
	Source    NodeSource
	Lifecycle *resource.Lifecycle
	Launcher  execution.Launcher
	Manifests storage.ManifestStore
	Reports   storage.Storage // Optional
	Processes execution.ProcessTable
	Logger    *slog.Logger
	// RunID returns the identifier of a new run. Defaults to the host pid.
	RunID func() string
	// OnPlan is called once the slices are known, before any worker starts
	OnPlan func(*Plan)
	// OnFinish is called as each worker reaches a terminal state
	OnFinish func(domain.WorkerResult)
	// ForceRecovery cleans a stale manifest even if its host still runs
	ForceRecovery bool
}

// Plan is the partitioned input of a run
type Plan struct {
	Items    []domain.WeightedItem
	Strategy partition.Strategy
	Slices   []domain.Slice
}

// Workers returns the number of worker processes the plan needs
func (p *Plan) Workers() int {
	return len(p.Slices)
}

// Controller runs the recovery scan, partitioning, resource acquisition,
// supervision, aggregation and cleanup of a run, in that order
type Controller struct {
	deps Dependencies
}

// New creates a Controller
func New(deps Dependencies) *Controller {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = resource.NewLifecycle(nil, deps.Config.GetDatabaseName, deps.Logger)
	}
	if deps.Processes == nil {
		deps.Processes = execution.SystemProcessTable()
	}
	if deps.RunID == nil {
		deps.RunID = func() string { return strconv.Itoa(os.Getpid()) }
	}
	return &Controller{deps: deps}
}

// Recover runs only the recovery scan
func (c *Controller) Recover(ctx context.Context) (*execution.RecoveryReport, error) {
	recovery := execution.NewRecovery(c.deps.Manifests, c.deps.Processes, c.deps.Lifecycle, c.deps.Logger)
	recovery.IgnoreHost = c.deps.ForceRecovery
	return recovery.Scan(ctx)
}

// Plan weighs and partitions the node's items without starting anything
func (c *Controller) Plan() (*Plan, error) {
	cfg := c.deps.Config

	strategy, err := partition.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, setupError("%w", err)
	}

	ids, err := c.deps.Source.NodeTests()
	if err != nil {
		return nil, setupError("load node tests: %w", err)
	}
	ids = discovery.NewFilter().FilterByName(ids, cfg.Flags.NameFilter)

	model := cost.NewModel(c.deps.Source.Durations(), cost.FileSize(cfg.ProjectPath))
	items := model.Weigh(ids)

	slices, err := partition.New(cfg.ParallelThreshold, cfg.MinimumPerProcess).Partition(items, cfg.Processors, strategy)
	if err != nil {
		return nil, setupError("partition: %w", err)
	}
	return &Plan{Items: items, Strategy: strategy.Resolve(items), Slices: slices}, nil
}

// Run executes the whole run. The report is returned whenever workers were
// started, together with a SetupError if the run could not proceed normally.
func (c *Controller) Run(ctx context.Context) (*domain.RunReport, error) {
	cfg := c.deps.Config
	started := time.Now()

	recovered, err := c.Recover(ctx)
	if err != nil {
		return nil, setupError("recovery scan: %w", err)
	}
	if recovered.Found {
		c.deps.Logger.Info("cleaned up stale run",
			"stale_run_id", recovered.RunID,
			"killed", len(recovered.Killed),
			"released", len(recovered.Released),
			"errors", len(recovered.Errors),
		)
	}

	plan, err := c.Plan()
	if err != nil {
		return nil, err
	}
	if c.deps.OnPlan != nil {
		c.deps.OnPlan(plan)
	}

	runID := c.deps.RunID()
	log := c.deps.Logger.With("run_id", runID)
	aggregator := report.NewAggregator()

	if len(plan.Items) == 0 {
		log.Warn("no tests to run")
		rep := aggregator.Aggregate(runID, nil, started)
		c.save(log, rep)
		return rep, nil
	}

	workers := plan.Workers()
	tracker := execution.NewTracker(c.deps.Manifests)
	if err := tracker.Begin(runID, workers); err != nil {
		return nil, setupError("%w", err)
	}

	// Handles are recorded before duplication so a crash mid-copy is still recoverable
	for i := 0; i < workers; i++ {
		if err := tracker.ResourceAcquired(c.deps.Lifecycle.Handle(runID, i)); err != nil {
			c.releaseAll(ctx, log, tracker)
			return nil, setupError("%w", err)
		}
	}
	acquired := c.deps.Lifecycle.AcquireAll(ctx, runID, workers, workers)

	assignments := make([]execution.Assignment, workers)
	for i, slice := range plan.Slices {
		assignments[i] = execution.Assignment{
			Index:        i,
			Items:        slice,
			Handle:       acquired[i].Handle,
			AcquireErr:   acquired[i].Err,
			Env:          c.workerEnv(runID, i, workers, acquired[i].Handle),
			LogPath:      cfg.GetWorkerLogPath(runID, i),
			FailuresPath: cfg.GetWorkerFailuresPath(runID, i),
		}
	}

	log.Info("starting workers", "workers", workers, "items", len(plan.Items), "strategy", plan.Strategy.String())
	supervisor := execution.NewSupervisor(execution.Options{
		Launcher: c.deps.Launcher,
		Tracker:  tracker,
		Releaser: c.deps.Lifecycle,
		Dir:      cfg.ProjectPath,
		Stagger:  cfg.Stagger,
		Logger:   c.deps.Logger,
		OnFinish: c.deps.OnFinish,
	})
	results, superErr := supervisor.Run(ctx, runID, assignments)

	rep := aggregator.Aggregate(runID, results, started)
	c.collectOutput(log, runID, rep)
	c.releaseAll(ctx, log, tracker)
	c.save(log, rep)

	if superErr != nil {
		return rep, &SetupError{Err: superErr}
	}
	return rep, nil
}

func (c *Controller) workerEnv(runID string, index, workers int, h domain.ResourceHandle) []string {
	cfg := c.deps.Config
	env := []string{
		"PTSPLIT_RUN_ID=" + runID,
		"PTSPLIT_WORKER_INDEX=" + strconv.Itoa(index),
		"PTSPLIT_WORKER_COUNT=" + strconv.Itoa(workers),
		"PTSPLIT_FAILURES_FILE=" + cfg.GetWorkerFailuresPath(runID, index),
	}
	if cfg.Database.Enabled() && h.Name != "" {
		env = append(env, "DB_DATABASE="+h.Name)
	}
	if index > 0 && cfg.ParallelIDEnv != "" {
		env = append(env, cfg.ParallelIDEnv+"="+cfg.ParallelID(runID, index))
	}
	return env
}

// collectOutput writes the combined log and failure list. Worker logs are only
// removed once they are safely combined.
func (c *Controller) collectOutput(log *slog.Logger, runID string, rep *domain.RunReport) {
	cfg := c.deps.Config

	combined := cfg.GetCombinedLogPath(runID)
	if err := report.WriteCombinedLog(combined, rep.Workers); err != nil {
		log.Warn("worker logs kept, combining failed", "dir", cfg.GetRunDir(runID), "error", err)
	} else {
		rep.Meta.CombinedLog = combined
		var failureFiles []string
		for _, w := range rep.Workers {
			failureFiles = append(failureFiles, cfg.GetWorkerFailuresPath(runID, w.Index))
		}
		if err := report.RemoveWorkerLogs(rep.Workers, failureFiles...); err != nil {
			log.Warn("failed to remove worker logs", "error", err)
		}
		for i := range rep.Workers {
			rep.Workers[i].LogPath = ""
		}
		_ = os.Remove(cfg.GetRunDir(runID))
	}

	if err := report.WriteFailures(cfg.GetCombinedFailuresPath(), rep.Details); err != nil {
		log.Warn("failed to write failure list", "error", err)
	}
}

// releaseAll releases whatever the manifest still lists, then removes the
// manifest if nothing is left. Leftovers are retried by the next recovery scan.
func (c *Controller) releaseAll(ctx context.Context, log *slog.Logger, tracker *execution.Tracker) {
	ctx = context.WithoutCancel(ctx)
	if snap := tracker.Snapshot(); snap != nil {
		for _, h := range snap.Resources {
			if err := c.deps.Lifecycle.Release(ctx, h); err != nil {
				log.Warn("resource left for recovery", "resource", h.Name, "error", err)
				continue
			}
			if err := tracker.ResourceReleased(h); err != nil {
				log.Error("released resource not removed from manifest", "resource", h.Name, "error", err)
			}
		}
	}
	if err := tracker.Close(); err != nil {
		log.Warn("manifest kept for recovery", "path", c.manifestPath(), "error", err)
	}
}

func (c *Controller) manifestPath() string {
	if s, ok := c.deps.Manifests.(*storage.JSONManifestStore); ok {
		return s.Path()
	}
	return ""
}

func (c *Controller) save(log *slog.Logger, rep *domain.RunReport) {
	if c.deps.Reports == nil {
		return
	}
	if err := c.deps.Reports.Save(rep); err != nil {
		log.Warn("failed to save run report", "error", err)
	}
}
