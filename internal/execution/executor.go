package execution

import (
	"context"
	"errors"

	"ptsplit/internal/domain"
)

// Invocation describes one worker process to start
type Invocation struct {
	WorkerIndex int
	Items       domain.Slice
	Env         []string // KEY=VALUE pairs added to the inherited environment
	Dir         string
	LogPath     string // Receives the worker's stdout and stderr
}

// ExitStatus is how a worker process ended
type ExitStatus struct {
	Code     int
	Signaled bool
	Signal   string
}

// Process is a started worker
type Process interface {
	PID() int
	// Wait blocks until the process ends. The error is non-nil only when the
	// status could not be collected.
	Wait() (ExitStatus, error)
}

// Launcher starts worker processes
type Launcher interface {
	Start(ctx context.Context, inv Invocation) (Process, error)
}

// ErrProcessGone is returned by Kill when no worker process group with that
// pid exists. A live process found under the pid is not one of ours.
var ErrProcessGone = errors.New("worker process group is gone")

// ProcessTable inspects and terminates processes recorded by an earlier run
type ProcessTable interface {
	Alive(pid int) bool
	// Kill terminates the worker process group led by pid
	Kill(pid int) error
}

// SystemProcessTable returns the ProcessTable of the host OS
func SystemProcessTable() ProcessTable {
	return systemProcessTable{}
}
