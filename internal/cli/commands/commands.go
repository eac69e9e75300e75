package commands

import (
	"ptsplit/internal/cli"
	"ptsplit/internal/config"
	"ptsplit/internal/storage"
	"ptsplit/internal/ui"

	"github.com/spf13/cobra"
)

// Commands holds all CLI commands
type Commands struct {
	Run      *RunCommand
	List     *ListCommand
	Recover  *RecoverCommand
	Failures *FailuresCommand
}

// NewCommands creates all commands with dependencies. Dependencies that need
// the parsed flags and environment are built when a command executes.
func NewCommands(cfg *config.Config) *Commands {
	jsonStorage := storage.NewJSONStorage(cfg)
	formatter := ui.NewFormatter()
	failureViewer := ui.NewFailureViewer(jsonStorage)

	return &Commands{
		Run:      NewRunCommand(cfg, jsonStorage, formatter, failureViewer),
		List:     NewListCommand(cfg, formatter),
		Recover:  NewRecoverCommand(cfg, formatter),
		Failures: NewFailuresCommand(cfg, jsonStorage, formatter, failureViewer),
	}
}

// Register registers all commands with cobra
func (c *Commands) Register(rootCmd *cobra.Command, flags *cli.Flags, cfg *config.Config) {
	applyFlags := func(cmd *cobra.Command, args []string) error {
		// Update config with environment and flags after parsing
		cfg.LoadEnv()
		cfg.Apply(flags.ToConfigFlags())
		return nil
	}

	rootCmd.PersistentFlags().StringVar(&flags.StateDir, "state-dir", "", "Directory holding the manifest, worker logs and last run report (default tmp/ptsplit)")
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flags.LogFormat, "log-format", "text", "Log format: text or json")

	// Run command
	runCmd := &cobra.Command{
		Use:   "run [flags] [-- runner args...]",
		Short: "Run the test suite in parallel",
		Long:  "Split this node's test files across worker processes, run them and aggregate the results",
		RunE:  c.Run.Execute,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyFlags(cmd, args); err != nil {
				return err
			}
			cfg.RunnerArgs = args
			return nil
		},
	}
	runCmd.Flags().IntVarP(&flags.Processors, "processors", "p", 0, "Number of worker processes (default: number of CPUs)")
	runCmd.Flags().BoolVar(&flags.NoParallel, "no-parallel", false, "Run every test file in a single worker")
	runCmd.Flags().StringVar(&flags.Strategy, "strategy", "", "Partitioning strategy: auto, contiguous or weighted")
	runCmd.Flags().StringVar(&flags.Command, "command", "", "Test command each worker runs (default \"bundle exec rspec\")")
	runCmd.Flags().DurationVar(&flags.Stagger, "stagger", 0, "Start offset per worker index, e.g. 500ms")
	runCmd.Flags().StringVar(&flags.TimingReport, "report", "", "Knapsack timing report (default knapsack_rspec_report.json)")
	runCmd.Flags().StringVar(&flags.Pattern, "pattern", "", "Test file pattern (default spec/**/*_spec.rb)")
	runCmd.Flags().StringVarP(&flags.NameFilter, "filter", "f", "", "Filter test files by name pattern (supports wildcards, e.g., '*user_spec.rb' or '*payment*')")
	runCmd.Flags().BoolVar(&flags.OpenFailures, "open-failures", false, "Open the failures viewer when the run finishes with failures")
	rootCmd.AddCommand(runCmd)

	// List command
	listCmd := &cobra.Command{
		Use:     "list",
		Short:   "Show how tests would be split",
		Long:    "Load this node's test files, weigh them and print the planned worker slices without running anything",
		RunE:    c.List.Execute,
		PreRunE: applyFlags,
	}
	listCmd.Flags().IntVarP(&flags.Processors, "processors", "p", 0, "Number of worker processes (default: number of CPUs)")
	listCmd.Flags().BoolVar(&flags.NoParallel, "no-parallel", false, "Plan a single worker")
	listCmd.Flags().StringVar(&flags.Strategy, "strategy", "", "Partitioning strategy: auto, contiguous or weighted")
	listCmd.Flags().StringVar(&flags.TimingReport, "report", "", "Knapsack timing report (default knapsack_rspec_report.json)")
	listCmd.Flags().StringVar(&flags.Pattern, "pattern", "", "Test file pattern (default spec/**/*_spec.rb)")
	listCmd.Flags().StringVarP(&flags.NameFilter, "filter", "f", "", "Filter test files by name pattern (supports wildcards, e.g., '*user_spec.rb' or '*payment*')")
	rootCmd.AddCommand(listCmd)

	// Recover command
	recoverCmd := &cobra.Command{
		Use:     "recover",
		Short:   "Clean up after an interrupted run",
		Long:    "Kill leftover worker processes and release scratch databases recorded in the run manifest",
		RunE:    c.Recover.Execute,
		PreRunE: applyFlags,
	}
	recoverCmd.Flags().BoolVar(&flags.Force, "force", false, "Clean up even if the process that started the run is still alive")
	rootCmd.AddCommand(recoverCmd)

	// Failures command
	failuresCmd := &cobra.Command{
		Use:     "failures",
		Short:   "View failures of the last run",
		Long:    "Display failures from the last run in an interactive viewer",
		RunE:    c.Failures.Execute,
		PreRunE: applyFlags,
	}
	failuresCmd.Flags().BoolVar(&flags.NoTUI, "no-tui", false, "Print the failure tree instead of opening the viewer")
	rootCmd.AddCommand(failuresCmd)
}
