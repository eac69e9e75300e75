package commands

import (
	"os"
	"strconv"

	"ptsplit/internal/cli"
	"ptsplit/internal/config"
	"ptsplit/internal/domain"
	"ptsplit/internal/run"
	"ptsplit/internal/storage"
	"ptsplit/internal/ui"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// RunCommand handles the run command
type RunCommand struct {
	config    *config.Config
	storage   storage.Storage
	formatter *ui.Formatter
	viewer    ui.Viewer
}

// NewRunCommand creates a new RunCommand
func NewRunCommand(
	cfg *config.Config,
	st storage.Storage,
	formatter *ui.Formatter,
	viewer ui.Viewer,
) *RunCommand {
	return &RunCommand{
		config:    cfg,
		storage:   st,
		formatter: formatter,
		viewer:    viewer,
	}
}

// Execute runs the command
func (rc *RunCommand) Execute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := newLogger(rc.config)
	runID := strconv.Itoa(os.Getpid())

	var progressBar *ui.ProgressBar
	controller, closeFn, err := newController(ctx, rc.config, log, needs{source: true, resources: true}, func(deps *run.Dependencies) {
		deps.Reports = rc.storage
		deps.RunID = func() string { return runID }
		deps.OnPlan = func(plan *run.Plan) {
			if len(plan.Items) == 0 {
				return
			}
			rc.formatter.PrintRunHeader(runID, plan.Workers(), len(plan.Items))
			progressBar = ui.NewProgressBar(plan.Workers())
		}
		deps.OnFinish = func(result domain.WorkerResult) {
			if progressBar != nil {
				progressBar.Observe(result)
			}
		}
	})
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := controller.Run(ctx)
	if progressBar != nil {
		progressBar.Finish()
	}

	if report != nil {
		if report.Meta.TotalItems == 0 {
			color.Yellow("No tests to execute")
		} else {
			for _, result := range report.Workers {
				rc.formatter.PrintWorkerFinished(result, len(report.Workers))
			}
			rc.formatter.PrintSummary(report)
		}
	}

	if code := exitCode(report, err); code != cli.ExitSuccess {
		if code == cli.ExitTestFailures && rc.config.Flags.OpenFailures {
			if viewErr := rc.viewer.View(report); viewErr != nil {
				log.Warn("failed to open failures viewer", "error", viewErr)
			}
		}
		return &cli.ExitError{Code: code, Err: err}
	}
	return nil
}

// exitCode maps a run outcome to the process exit code
func exitCode(report *domain.RunReport, err error) int {
	switch {
	case err != nil:
		return cli.ExitSetupError
	case report == nil:
		return cli.ExitSetupError
	case !report.Succeeded():
		return cli.ExitTestFailures
	}
	return cli.ExitSuccess
}
