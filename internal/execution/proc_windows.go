//go:build windows

package execution

import (
	"os"
	"os/exec"
)

func configureWorkerProcess(cmd *exec.Cmd) {}

func exitStatus(state *os.ProcessState) ExitStatus {
	return ExitStatus{Code: state.ExitCode()}
}

type systemProcessTable struct{}

func (systemProcessTable) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	p.Release()
	return true
}

func (systemProcessTable) Kill(pid int) error {
	if pid <= 0 {
		return ErrProcessGone
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return ErrProcessGone
	}
	return p.Kill()
}
