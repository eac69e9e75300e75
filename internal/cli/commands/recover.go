package commands

import (
	"errors"
	"fmt"

	"ptsplit/internal/config"
	"ptsplit/internal/execution"
	"ptsplit/internal/ui"

	"github.com/spf13/cobra"
)

// RecoverCommand handles the recover command
type RecoverCommand struct {
	config    *config.Config
	formatter *ui.Formatter
}

// NewRecoverCommand creates a new RecoverCommand
func NewRecoverCommand(cfg *config.Config, formatter *ui.Formatter) *RecoverCommand {
	return &RecoverCommand{
		config:    cfg,
		formatter: formatter,
	}
}

// Execute runs the command
func (rc *RecoverCommand) Execute(cmd *cobra.Command, args []string) error {
	log := newLogger(rc.config)
	controller, closeFn, err := newController(cmd.Context(), rc.config, log, needs{resources: true}, nil)
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := controller.Recover(cmd.Context())
	if errors.Is(err, execution.ErrRunInProgress) {
		return setupFailed(fmt.Errorf("%w (use --force to clean up anyway)", err))
	}
	if err != nil {
		return setupFailed(err)
	}

	// Cleanup is best-effort, failed steps are printed but do not fail the command
	rc.formatter.PrintRecovery(report)
	return nil
}
