//go:build !windows

package execution

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptsplit/internal/domain"
)

func TestRunner_ExitCodeAndLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "run", "worker_1.log")
	runner := NewCommandRunner([]string{"/bin/sh", "-c", `echo "items: $*"; echo "id=$TC_PARALLEL_ID" 1>&2; exit 3`, "sh"})

	proc, err := runner.Start(context.Background(), Invocation{
		WorkerIndex: 1,
		Items:       domain.Slice{"spec/a_spec.rb", "spec/b_spec.rb"},
		Env:         []string{"TC_PARALLEL_ID=_9_1"},
		LogPath:     logPath,
	})
	require.NoError(t, err)
	assert.Greater(t, proc.PID(), 0)

	status, err := proc.Wait()
	require.NoError(t, err)
	assert.Equal(t, ExitStatus{Code: 3}, status)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "items: spec/a_spec.rb spec/b_spec.rb")
	assert.Contains(t, string(data), "id=_9_1")
}

func TestRunner_Signaled(t *testing.T) {
	runner := NewCommandRunner([]string{"/bin/sh", "-c", "kill -9 $$"})
	proc, err := runner.Start(context.Background(), Invocation{LogPath: filepath.Join(t.TempDir(), "w.log")})
	require.NoError(t, err)

	status, err := proc.Wait()
	require.NoError(t, err)
	assert.True(t, status.Signaled)
	assert.Equal(t, "killed", status.Signal)
}

func TestRunner_StartFailure(t *testing.T) {
	runner := NewCommandRunner([]string{"/nonexistent/rspec"})
	_, err := runner.Start(context.Background(), Invocation{LogPath: filepath.Join(t.TempDir(), "w.log")})
	assert.Error(t, err)

	_, err = NewCommandRunner(nil).Start(context.Background(), Invocation{LogPath: filepath.Join(t.TempDir(), "w.log")})
	assert.Error(t, err)
}

func TestSystemProcessTable(t *testing.T) {
	procs := SystemProcessTable()
	runner := NewCommandRunner([]string{"/bin/sh", "-c", "sleep 30"})
	proc, err := runner.Start(context.Background(), Invocation{LogPath: filepath.Join(t.TempDir(), "w.log")})
	require.NoError(t, err)

	assert.True(t, procs.Alive(proc.PID()))
	require.NoError(t, procs.Kill(proc.PID()))

	status, err := proc.Wait()
	require.NoError(t, err)
	assert.True(t, status.Signaled)

	assert.False(t, procs.Alive(proc.PID()))
	assert.ErrorIs(t, procs.Kill(proc.PID()), ErrProcessGone)
	assert.False(t, procs.Alive(0))
}

func TestSystemProcessTable_KillSparesProcessOutsideWorkerGroup(t *testing.T) {
	// Started without its own process group, like an unrelated process that
	// took over a stale worker's pid
	cmd := exec.Command("/bin/sh", "-c", "sleep 30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	procs := SystemProcessTable()
	pid := cmd.Process.Pid
	require.True(t, procs.Alive(pid))

	assert.ErrorIs(t, procs.Kill(pid), ErrProcessGone)
	assert.True(t, procs.Alive(pid), "the process is not signalled")
}
