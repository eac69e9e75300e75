//go:build !windows

package execution

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

func configureWorkerProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func exitStatus(state *os.ProcessState) ExitStatus {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signaled: true, Signal: ws.Signal().String()}
	}
	return ExitStatus{Code: state.ExitCode()}
}

type systemProcessTable struct{}

func (systemProcessTable) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Kill terminates the worker's whole process group, which shares its pid.
// Workers always lead their own group, so a pid without a group is never
// signalled: it has been reused by an unrelated process.
func (systemProcessTable) Kill(pid int) error {
	if pid <= 0 {
		return ErrProcessGone
	}
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return ErrProcessGone
	}
	return err
}
