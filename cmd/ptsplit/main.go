package main

import (
	"errors"
	"fmt"
	"os"

	"ptsplit/internal/cli"
	"ptsplit/internal/cli/commands"
	"ptsplit/internal/config"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	// Create root command
	rootCmd := &cobra.Command{
		Use:   "ptsplit",
		Short: "Parallel test suite splitter",
		Long: `Split a test suite across CI nodes and worker processes using recorded timings,
run the workers in parallel and aggregate their failures into one report.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Create initial config with defaults
	cfg := config.New()

	// Create flags struct (will be populated by command flags)
	var flags cli.Flags

	// Create commands with dependencies
	cmds := commands.NewCommands(cfg)

	// Register all commands
	cmds.Register(rootCmd, &flags, cfg)

	os.Exit(exitCode(rootCmd.Execute()))
}

func exitCode(err error) int {
	if err == nil {
		return cli.ExitSuccess
	}

	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", exitErr.Err)
		}
		return exitErr.Code
	}

	// Flag and argument errors
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return cli.ExitSetupError
}
