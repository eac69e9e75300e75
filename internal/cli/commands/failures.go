package commands

import (
	"fmt"

	"ptsplit/internal/config"
	"ptsplit/internal/storage"
	"ptsplit/internal/ui"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// FailuresCommand handles the failures command
type FailuresCommand struct {
	config    *config.Config
	storage   storage.Storage
	formatter *ui.Formatter
	viewer    ui.Viewer
}

// NewFailuresCommand creates a new FailuresCommand
func NewFailuresCommand(cfg *config.Config, st storage.Storage, formatter *ui.Formatter, viewer ui.Viewer) *FailuresCommand {
	return &FailuresCommand{
		config:    cfg,
		storage:   st,
		formatter: formatter,
		viewer:    viewer,
	}
}

// Execute runs the command
func (fc *FailuresCommand) Execute(cmd *cobra.Command, args []string) error {
	report, err := fc.storage.Load()
	if err != nil {
		return setupFailed(fmt.Errorf("no saved run at %s: %w", fc.config.GetReportPath(), err))
	}

	if len(report.Details) == 0 {
		color.Green("✓ No failures in run %s", report.Meta.RunID)
		return nil
	}

	if fc.config.Flags.NoTUI {
		fc.formatter.PrintSummary(report)
		return nil
	}
	return fc.viewer.View(report)
}
