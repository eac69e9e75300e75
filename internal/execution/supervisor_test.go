package execution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptsplit/internal/domain"
	"ptsplit/internal/logger"
	"ptsplit/internal/parser"
	"ptsplit/internal/storage"
)

type outcome struct {
	status  ExitStatus
	waitErr error
	output  string
}

type fakeProcess struct {
	pid     int
	logPath string
	outcome outcome
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Wait() (ExitStatus, error) {
	if p.outcome.output != "" {
		if err := os.WriteFile(p.logPath, []byte(p.outcome.output), 0644); err != nil {
			return ExitStatus{}, err
		}
	}
	return p.outcome.status, p.outcome.waitErr
}

type fakeLauncher struct {
	mu       sync.Mutex
	outcomes map[int]outcome
	startErr map[int]error
	started  []Invocation
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{outcomes: map[int]outcome{}, startErr: map[int]error{}}
}

func (l *fakeLauncher) Start(_ context.Context, inv Invocation) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.startErr[inv.WorkerIndex]; err != nil {
		return nil, err
	}
	l.started = append(l.started, inv)
	return &fakeProcess{pid: 1000 + inv.WorkerIndex, logPath: inv.LogPath, outcome: l.outcomes[inv.WorkerIndex]}, nil
}

type fakeReleaser struct {
	mu       sync.Mutex
	released []string
	fail     map[string]error
}

func (r *fakeReleaser) Release(_ context.Context, h domain.ResourceHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[h.Name]; err != nil {
		return err
	}
	r.released = append(r.released, h.Name)
	return nil
}

func assignments(t *testing.T, runID string, n int) []Assignment {
	dir := t.TempDir()
	out := make([]Assignment, n)
	for i := range out {
		out[i] = Assignment{
			Index:   i,
			Items:   domain.Slice{fmt.Sprintf("spec/w%d_a_spec.rb", i), fmt.Sprintf("spec/w%d_b_spec.rb", i)},
			Handle:  domain.ResourceHandle{RunID: runID, WorkerIndex: i, Name: fmt.Sprintf("app_test_%s_%d", runID, i), Primary: i == 0},
			LogPath: filepath.Join(dir, fmt.Sprintf("worker_%d.log", i)),
		}
	}
	return out
}

func beginTracker(t *testing.T, runID string, as []Assignment) (*Tracker, *storage.MemoryManifestStore) {
	store := storage.NewMemoryManifestStore(nil)
	tracker := NewTracker(store)
	require.NoError(t, tracker.Begin(runID, len(as)))
	for _, a := range as {
		require.NoError(t, tracker.ResourceAcquired(a.Handle))
	}
	return tracker, store
}

func TestSupervisor_OneCrashAmongThree(t *testing.T) {
	as := assignments(t, "42", 3)
	tracker, _ := beginTracker(t, "42", as)

	launcher := newFakeLauncher()
	launcher.outcomes[1] = outcome{status: ExitStatus{Code: -1, Signaled: true, Signal: "killed"}}
	launcher.outcomes[2] = outcome{
		status: ExitStatus{Code: 1},
		output: "1 example, 1 failure\n\nrspec ./spec/w2_b_spec.rb:9 # B fails\n",
	}
	releaser := &fakeReleaser{}

	var finished []int
	sup := NewSupervisor(Options{
		Launcher: launcher,
		Tracker:  tracker,
		Releaser: releaser,
		Logger:   logger.Discard(),
		OnFinish: func(r domain.WorkerResult) { finished = append(finished, r.Index) },
	})

	results, err := sup.Run(context.Background(), "42", as)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, domain.StateCompleted, results[0].State)
	assert.Empty(t, results[0].Failures)

	assert.Equal(t, domain.StateCrashed, results[1].State)
	assert.Equal(t, "killed", results[1].Signal)
	require.Len(t, results[1].Failures, 1)
	assert.True(t, results[1].Failures[0].Crash)

	assert.Equal(t, domain.StateCompleted, results[2].State)
	assert.Equal(t, 1, results[2].ExitCode)
	require.Len(t, results[2].Failures, 1)
	assert.Equal(t, "spec/w2_b_spec.rb", results[2].Failures[0].ItemID)
	assert.Equal(t, 1, results[2].Failures[0].ExitCode)
	assert.True(t, results[2].Counted)
	assert.Equal(t, 1, results[2].Examples)
	assert.Equal(t, 1, results[2].ExampleFailures)
	assert.False(t, results[0].Counted, "worker 0 wrote no log")

	assert.ElementsMatch(t, []int{0, 1, 2}, finished)
	assert.ElementsMatch(t, []string{"app_test_42_0", "app_test_42_1", "app_test_42_2"}, releaser.released, "crashed workers still release")

	snap := tracker.Snapshot()
	assert.Empty(t, snap.Workers)
	assert.Empty(t, snap.Resources)
	assert.NoError(t, tracker.Close())
}

func TestSupervisor_NonZeroExitWithoutParsedFailures(t *testing.T) {
	as := assignments(t, "42", 1)
	tracker, _ := beginTracker(t, "42", as)

	launcher := newFakeLauncher()
	launcher.outcomes[0] = outcome{status: ExitStatus{Code: 2}, output: "LoadError: cannot load such file\n"}

	results, err := NewSupervisor(Options{Launcher: launcher, Tracker: tracker, Logger: logger.Discard()}).Run(context.Background(), "42", as)
	require.NoError(t, err)

	require.Len(t, results[0].Failures, 1)
	f := results[0].Failures[0]
	assert.True(t, f.WorkerLevel())
	assert.False(t, f.Crash)
	assert.Equal(t, "exit status 2", f.Detail)
}

// minitestParser reads "FAIL <location>" lines and a "N runs, M failures" summary
type minitestParser struct{}

func (minitestParser) ParseFailures(output string) []parser.Failure {
	var failures []parser.Failure
	for _, line := range strings.Split(output, "\n") {
		if loc, ok := strings.CutPrefix(line, "FAIL "); ok {
			failures = append(failures, parser.Failure{Location: loc, Description: "minitest failure"})
		}
	}
	return failures
}

func (minitestParser) ParseCounts(output string) (int, int, bool) {
	var runs, failures int
	for _, line := range strings.Split(output, "\n") {
		if _, err := fmt.Sscanf(line, "%d runs, %d failures", &runs, &failures); err == nil {
			return runs, failures, true
		}
	}
	return 0, 0, false
}

func (minitestParser) ParseFailuresFile(string) []parser.Failure { return nil }

func TestSupervisor_UsesConfiguredParser(t *testing.T) {
	as := assignments(t, "42", 1)
	tracker, _ := beginTracker(t, "42", as)

	launcher := newFakeLauncher()
	launcher.outcomes[0] = outcome{status: ExitStatus{Code: 1}, output: "FAIL spec/w0_b_spec.rb:4\n\n2 runs, 1 failures\n"}

	results, err := NewSupervisor(Options{Launcher: launcher, Tracker: tracker, Parser: minitestParser{}, Logger: logger.Discard()}).Run(context.Background(), "42", as)
	require.NoError(t, err)

	require.Len(t, results[0].Failures, 1)
	assert.Equal(t, "spec/w0_b_spec.rb", results[0].Failures[0].ItemID)
	assert.Equal(t, "minitest failure", results[0].Failures[0].Detail)
	assert.True(t, results[0].Counted)
	assert.Equal(t, 2, results[0].Examples)
	assert.Equal(t, 1, results[0].ExampleFailures)
}

func TestSupervisor_AcquireFailureSkipsOnlyThatWorker(t *testing.T) {
	as := assignments(t, "42", 3)
	as[2].AcquireErr = errors.New("disk full")
	tracker, _ := beginTracker(t, "42", as[:2])

	launcher := newFakeLauncher()
	results, err := NewSupervisor(Options{Launcher: launcher, Tracker: tracker, Releaser: &fakeReleaser{}, Logger: logger.Discard()}).Run(context.Background(), "42", as)
	require.NoError(t, err)

	assert.Len(t, launcher.started, 2)
	assert.Equal(t, domain.StateCrashed, results[2].State)
	assert.Contains(t, results[2].Error, "disk full")
	require.Len(t, results[2].Failures, 1)
	assert.True(t, results[2].Failures[0].Crash)
	assert.Equal(t, domain.StateCompleted, results[0].State)
	assert.Equal(t, domain.StateCompleted, results[1].State)
}

func TestSupervisor_NoWorkerStarted(t *testing.T) {
	as := assignments(t, "42", 2)
	tracker, _ := beginTracker(t, "42", as)

	launcher := newFakeLauncher()
	launcher.startErr[0] = errors.New("exec format error")
	launcher.startErr[1] = errors.New("exec format error")

	results, err := NewSupervisor(Options{Launcher: launcher, Tracker: tracker, Releaser: &fakeReleaser{}, Logger: logger.Discard()}).Run(context.Background(), "42", as)
	assert.True(t, errors.Is(err, ErrNoWorkerStarted))
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, domain.StateCrashed, r.State)
	}
}

func TestSupervisor_FailedReleaseStaysInManifest(t *testing.T) {
	as := assignments(t, "42", 2)
	tracker, store := beginTracker(t, "42", as)

	releaser := &fakeReleaser{fail: map[string]error{"app_test_42_1": errors.New("connection refused")}}
	_, err := NewSupervisor(Options{Launcher: newFakeLauncher(), Tracker: tracker, Releaser: releaser, Logger: logger.Discard()}).Run(context.Background(), "42", as)
	require.NoError(t, err)

	persisted, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, persisted.Workers)
	require.Len(t, persisted.Resources, 1)
	assert.Equal(t, "app_test_42_1", persisted.Resources[0].Name)

	assert.Error(t, tracker.Close())
	_, err = store.Load()
	assert.NoError(t, err, "manifest is kept for the next recovery scan")
}

func TestSupervisor_Stagger(t *testing.T) {
	as := assignments(t, "42", 3)
	tracker, _ := beginTracker(t, "42", as)

	start := time.Now()
	results, err := NewSupervisor(Options{
		Launcher: newFakeLauncher(),
		Tracker:  tracker,
		Stagger:  20 * time.Millisecond,
		Logger:   logger.Discard(),
	}).Run(context.Background(), "42", as)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, results[2].StartedAt.Sub(start), 40*time.Millisecond)
	assert.GreaterOrEqual(t, results[1].StartedAt.Sub(start), 20*time.Millisecond)
}

func TestSupervisor_InterruptedBeforeStart(t *testing.T) {
	as := assignments(t, "42", 2)
	tracker, _ := beginTracker(t, "42", as)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	launcher := newFakeLauncher()
	results, err := NewSupervisor(Options{Launcher: launcher, Tracker: tracker, Stagger: time.Hour, Logger: logger.Discard()}).Run(ctx, "42", as)
	require.NoError(t, err, "worker 0 has no delay and still starts")

	assert.Equal(t, domain.StateCompleted, results[0].State)
	assert.Equal(t, domain.StateCrashed, results[1].State)
	assert.Equal(t, "interrupted before start", results[1].Error)
}

func TestTracker(t *testing.T) {
	store := storage.NewMemoryManifestStore(nil)
	tracker := NewTracker(store)

	require.Error(t, tracker.WorkerStarted(0, 1), "updates before Begin are rejected")
	require.NoError(t, tracker.Begin("7", 2))

	h := domain.ResourceHandle{RunID: "7", WorkerIndex: 1, Name: "db_7_1"}
	require.NoError(t, tracker.ResourceAcquired(domain.ResourceHandle{RunID: "7", Name: "db", Primary: true}))
	require.NoError(t, tracker.ResourceAcquired(h))
	require.NoError(t, tracker.WorkerStarted(0, 10))
	require.NoError(t, tracker.WorkerStarted(1, 11))

	m, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), m.HostPID)
	assert.Len(t, m.Workers, 2)
	assert.Len(t, m.Resources, 1, "primary handles are never tracked")

	require.NoError(t, tracker.WorkerFinished(0))
	require.NoError(t, tracker.WorkerFinished(1))
	require.NoError(t, tracker.ResourceReleased(h))
	require.NoError(t, tracker.Close())

	_, err = store.Load()
	assert.True(t, errors.Is(err, storage.ErrNoManifest))
	assert.Nil(t, tracker.Snapshot())
}

func TestTracker_PersistFailure(t *testing.T) {
	store := storage.NewMemoryManifestStore(nil)
	tracker := NewTracker(store)
	require.NoError(t, tracker.Begin("7", 1))

	store.FailSave = errors.New("read-only file system")
	assert.Error(t, tracker.WorkerStarted(0, 10))
}
