package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"ptsplit/internal/cli"
	"ptsplit/internal/config"
	"ptsplit/internal/discovery"
	"ptsplit/internal/distribution"
	"ptsplit/internal/execution"
	"ptsplit/internal/logger"
	"ptsplit/internal/resource"
	"ptsplit/internal/run"
	"ptsplit/internal/storage"
)

func newLogger(cfg *config.Config) *slog.Logger {
	return logger.New(os.Stderr, logger.Options{Verbose: cfg.Flags.Verbose, Format: cfg.Flags.LogFormat})
}

// newSource loads the timing report and builds this node's allocator.
// A missing report is not an error: every file is then a leftover.
func newSource(cfg *config.Config, log *slog.Logger) (*distribution.Allocator, error) {
	report, err := distribution.LoadReport(cfg.GetTimingReportPath())
	if err != nil {
		if !errors.Is(err, distribution.ErrNoReport) {
			return nil, err
		}
		log.Warn("no timing report, weighing by file size", "path", cfg.GetTimingReportPath())
	}

	return distribution.NewAllocator(distribution.Options{
		Root:      cfg.ProjectPath,
		Pattern:   cfg.TestFilePattern,
		Report:    report,
		NodeTotal: cfg.NodeTotal,
		NodeIndex: cfg.NodeIndex,
		Scanner:   discovery.NewScanner(cfg.PathsToIgnore),
	})
}

// newLifecycle duplicates the configured MySQL database per worker, or hands
// out names only when no database is configured. The returned func closes
// the server connection.
func newLifecycle(ctx context.Context, cfg *config.Config, log *slog.Logger) (*resource.Lifecycle, func(), error) {
	if !cfg.Database.Enabled() {
		return resource.NewLifecycle(nil, cfg.GetDatabaseName, log), func() {}, nil
	}

	provisioner, err := resource.OpenMySQL(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := provisioner.Close(); err != nil {
			log.Warn("failed to close database connection", "error", err)
		}
	}
	return resource.NewLifecycle(provisioner, cfg.GetDatabaseName, log), closeFn, nil
}

// needs selects the collaborators a command uses
type needs struct {
	source    bool // plans from the timing report and test files
	resources bool // connects to the database server
}

// newController wires a run.Controller from the parsed config
func newController(ctx context.Context, cfg *config.Config, log *slog.Logger, n needs, configure func(*run.Dependencies)) (*run.Controller, func(), error) {
	deps := run.Dependencies{
		Config:        cfg,
		Launcher:      execution.NewRunner(cfg),
		Manifests:     storage.NewJSONManifestStore(cfg.GetManifestPath()),
		Logger:        log,
		ForceRecovery: cfg.Flags.Force,
	}

	if n.source {
		source, err := newSource(cfg, log)
		if err != nil {
			return nil, nil, setupFailed(fmt.Errorf("load tests: %w", err))
		}
		deps.Source = source
	}

	closeFn := func() {}
	if n.resources {
		lifecycle, closeLifecycle, err := newLifecycle(ctx, cfg, log)
		if err != nil {
			return nil, nil, setupFailed(err)
		}
		deps.Lifecycle = lifecycle
		closeFn = closeLifecycle
	}

	if configure != nil {
		configure(&deps)
	}
	return run.New(deps), closeFn, nil
}

func setupFailed(err error) error {
	return &cli.ExitError{Code: cli.ExitSetupError, Err: err}
}
