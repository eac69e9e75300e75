package execution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"ptsplit/internal/config"
)

// Runner starts the configured test command once per slice
type Runner struct {
	command []string
}

// NewRunner creates a Runner for the config's command line
func NewRunner(cfg *config.Config) *Runner {
	return NewCommandRunner(cfg.CommandLine())
}

// NewCommandRunner creates a Runner for an explicit program and arguments.
// Slice items are appended after the arguments.
func NewCommandRunner(command []string) *Runner {
	return &Runner{command: command}
}

// Start launches the test command for one slice in its own process group
func (r *Runner) Start(_ context.Context, inv Invocation) (Process, error) {
	if len(r.command) == 0 {
		return nil, errors.New("no worker command configured")
	}

	if err := os.MkdirAll(filepath.Dir(inv.LogPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.Create(inv.LogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker log: %w", err)
	}

	args := make([]string, 0, len(r.command)-1+len(inv.Items))
	args = append(args, r.command[1:]...)
	args = append(args, inv.Items...)

	// Not bound to ctx: workers are only ever terminated from outside or by the recovery scan
	cmd := exec.Command(r.command[0], args...)
	cmd.Env = append(os.Environ(), inv.Env...)
	cmd.Dir = inv.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	configureWorkerProcess(cmd)

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to start %s: %w", r.command[0], err)
	}
	return &process{cmd: cmd, log: logFile}, nil
}

type process struct {
	cmd *exec.Cmd
	log *os.File
}

func (p *process) PID() int {
	return p.cmd.Process.Pid
}

func (p *process) Wait() (ExitStatus, error) {
	err := p.cmd.Wait()
	p.log.Close()

	if err == nil {
		return ExitStatus{}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitStatus(exitErr.ProcessState), nil
	}
	return ExitStatus{Code: -1}, err
}
