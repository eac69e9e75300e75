package commands

import (
	"ptsplit/internal/config"
	"ptsplit/internal/ui"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ListCommand handles the list command
type ListCommand struct {
	config    *config.Config
	formatter *ui.Formatter
}

// NewListCommand creates a new ListCommand
func NewListCommand(cfg *config.Config, formatter *ui.Formatter) *ListCommand {
	return &ListCommand{
		config:    cfg,
		formatter: formatter,
	}
}

// Execute runs the command
func (lc *ListCommand) Execute(cmd *cobra.Command, args []string) error {
	log := newLogger(lc.config)
	controller, closeFn, err := newController(cmd.Context(), lc.config, log, needs{source: true}, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	plan, err := controller.Plan()
	if err != nil {
		return setupFailed(err)
	}

	if len(plan.Items) == 0 {
		color.Yellow("No tests found")
		return nil
	}

	if lc.config.NodeTotal > 1 {
		color.New(color.FgCyan).Printf("CI node %d/%d\n", lc.config.NodeIndex+1, lc.config.NodeTotal)
	}
	lc.formatter.PrintPlan(plan.Items, plan.Slices, plan.Strategy.String())
	return nil
}
