package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ptsplit/internal/domain"
)

func fixedAggregator(now time.Time) *Aggregator {
	return &Aggregator{now: func() time.Time { return now }}
}

func TestAggregate_OneCrashAmongThree(t *testing.T) {
	started := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	results := []domain.WorkerResult{
		{Index: 2, State: domain.StateCompleted, Items: domain.Slice{"spec/e_spec.rb", "spec/f_spec.rb"}},
		{Index: 0, State: domain.StateCompleted, Items: domain.Slice{"spec/a_spec.rb", "spec/b_spec.rb"}},
		{
			Index: 1, State: domain.StateCrashed, Signal: "killed", ExitCode: -1,
			Items:    domain.Slice{"spec/c_spec.rb", "spec/d_spec.rb"},
			Failures: []domain.FailureRecord{{WorkerIndex: 1, Detail: "worker crashed: signal: killed", ExitCode: -1, Crash: true}},
		},
	}

	report := fixedAggregator(started.Add(90*time.Second)).Aggregate("42", results, started)

	assert.Equal(t, domain.RunFailure, report.Meta.Status)
	assert.False(t, report.Succeeded())
	require.Len(t, report.Workers, 3, "healthy workers stay in the report")
	for i, w := range report.Workers {
		assert.Equal(t, i, w.Index)
	}
	assert.Equal(t, domain.StateCompleted, report.Workers[0].State)
	assert.Equal(t, domain.StateCompleted, report.Workers[2].State)

	assert.Equal(t, 6, report.Meta.TotalItems)
	assert.Equal(t, 1, report.Meta.CrashedWorkers)
	assert.Equal(t, 1, report.Meta.FailedWorkers)
	assert.Equal(t, 0, report.Meta.FailedItems)
	assert.Equal(t, 1, report.Meta.Failures)
	assert.Equal(t, "1m30s", report.Meta.Duration)
	assert.InDelta(t, 90, report.Meta.DurationSeconds, 1e-9)
}

func TestAggregate_Success(t *testing.T) {
	now := time.Now()
	report := fixedAggregator(now).Aggregate("1", []domain.WorkerResult{
		{Index: 0, State: domain.StateCompleted, Items: domain.Slice{"spec/a_spec.rb"}},
	}, now)

	assert.Equal(t, domain.RunSuccess, report.Meta.Status)
	assert.NotNil(t, report.Details)
	assert.Empty(t, report.Details)
}

func TestAggregate_KilledWorkerFailsRun(t *testing.T) {
	now := time.Now()
	report := fixedAggregator(now).Aggregate("1", []domain.WorkerResult{
		{Index: 0, State: domain.StateCompleted},
		{Index: 1, State: domain.StateKilled},
	}, now)

	assert.Equal(t, domain.RunFailure, report.Meta.Status, "abnormal termination fails the run even without records")
}

func TestAggregate_FailureOrder(t *testing.T) {
	now := time.Now()
	results := []domain.WorkerResult{
		{Index: 1, State: domain.StateCompleted, Failures: []domain.FailureRecord{
			{ItemID: "spec/c_spec.rb", WorkerIndex: 1},
			{ItemID: "spec/d_spec.rb", WorkerIndex: 1},
		}},
		{Index: 0, State: domain.StateCompleted, Failures: []domain.FailureRecord{
			{ItemID: "spec/a_spec.rb", WorkerIndex: 0},
			{ItemID: "spec/a_spec.rb", WorkerIndex: 0, Location: "./spec/a_spec.rb:20"},
		}},
	}

	report := fixedAggregator(now).Aggregate("1", results, now)

	var got []string
	for _, d := range report.Details {
		got = append(got, d.ItemID)
	}
	assert.Equal(t, []string{"spec/a_spec.rb", "spec/a_spec.rb", "spec/c_spec.rb", "spec/d_spec.rb"}, got)
	assert.Equal(t, 3, report.Meta.FailedItems)
	assert.Equal(t, 2, report.Meta.FailedWorkers)
}

func TestCombineLogs(t *testing.T) {
	dir := t.TempDir()
	log0 := filepath.Join(dir, "worker_0.log")
	log1 := filepath.Join(dir, "worker_1.log")
	require.NoError(t, os.WriteFile(log0, []byte("zero output\n"), 0644))
	require.NoError(t, os.WriteFile(log1, []byte("one output\n"), 0644))

	results := []domain.WorkerResult{
		{Index: 1, State: domain.StateCompleted, LogPath: log1},
		{Index: 0, State: domain.StateCompleted, LogPath: log0},
		{Index: 2, State: domain.StateCrashed, LogPath: filepath.Join(dir, "worker_2.log")},
	}

	var buf bytes.Buffer
	require.NoError(t, CombineLogs(&buf, results))
	out := buf.String()

	i0 := strings.Index(out, "zero output")
	i1 := strings.Index(out, "one output")
	require.True(t, i0 >= 0 && i1 >= 0)
	assert.Less(t, i0, i1)
	assert.Contains(t, out, "Parallel testing 0/3 finished (completed)")
	assert.Contains(t, out, "Parallel testing 2/3 finished (crashed)")
	assert.Contains(t, out, "(no log output")

	combined := filepath.Join(dir, "42.log")
	require.NoError(t, WriteCombinedLog(combined, results))
	data, err := os.ReadFile(combined)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))

	require.NoError(t, RemoveWorkerLogs(results))
	_, err = os.Stat(log0)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "failures.txt")
	details := []domain.FailureRecord{
		{ItemID: "spec/a_spec.rb", Location: "./spec/a_spec.rb:12"},
		{ItemID: "spec/a_spec.rb", Location: "./spec/a_spec.rb:12"},
		{ItemID: "spec/b_spec.rb"},
		{WorkerIndex: 3, Detail: "worker crashed: signal: killed", Crash: true},
	}
	require.NoError(t, WriteFailures(path, details))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "./spec/a_spec.rb:12\nspec/b_spec.rb\n", string(data))
}
