package cli

import (
	"strconv"
	"time"

	"ptsplit/internal/config"
)

// Exit codes of the ptsplit binary
const (
	ExitSuccess      = 0
	ExitTestFailures = 1
	ExitSetupError   = 2
)

// Flags holds command-line flags
type Flags struct {
	Processors   int
	NoParallel   bool
	Strategy     string
	Command      string
	Stagger      time.Duration
	StateDir     string
	TimingReport string
	Pattern      string
	NameFilter   string
	Verbose      bool
	LogFormat    string
	NoTUI        bool
	OpenFailures bool
	Force        bool
}

// ToConfigFlags converts CLI flags to config flags
func (f *Flags) ToConfigFlags() config.Flags {
	return config.Flags{
		Processors:   f.Processors,
		NoParallel:   f.NoParallel,
		Strategy:     f.Strategy,
		Command:      f.Command,
		Stagger:      f.Stagger,
		StateDir:     f.StateDir,
		TimingReport: f.TimingReport,
		Pattern:      f.Pattern,
		NameFilter:   f.NameFilter,
		Verbose:      f.Verbose,
		LogFormat:    f.LogFormat,
		NoTUI:        f.NoTUI,
		OpenFailures: f.OpenFailures,
		Force:        f.Force,
	}
}

// ExitError carries the process exit code of a finished command.
// Err is nil when the command already reported everything it had to say.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return "exit status " + strconv.Itoa(e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
