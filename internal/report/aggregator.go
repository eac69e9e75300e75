// Package report merges worker outcomes into the run-level report.
package report

import (
	"sort"
	"time"

	"ptsplit/internal/domain"
)

// Aggregator builds run reports
type Aggregator struct {
	now func() time.Time
}

// NewAggregator creates an Aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// Aggregate merges worker results in worker index order, whatever order they
// finished in. The run succeeds only when no worker reported a failure and
// every worker completed.
func (a *Aggregator) Aggregate(runID string, results []domain.WorkerResult, started time.Time) *domain.RunReport {
	workers := make([]domain.WorkerResult, len(results))
	copy(workers, results)
	sort.SliceStable(workers, func(i, j int) bool { return workers[i].Index < workers[j].Index })

	details := []domain.FailureRecord{}
	failedItems := make(map[string]bool)
	meta := domain.RunMeta{RunID: runID, Workers: len(workers)}

	allCompleted := true
	for _, w := range workers {
		meta.TotalItems += len(w.Items)
		if w.State != domain.StateCompleted {
			allCompleted = false
		}
		if w.State.Abnormal() {
			meta.CrashedWorkers++
		}
		if len(w.Failures) > 0 {
			meta.FailedWorkers++
		}
		for _, f := range w.Failures {
			details = append(details, f)
			if !f.WorkerLevel() {
				failedItems[f.ItemID] = true
			}
		}
	}

	duration := a.now().Sub(started)
	meta.FailedItems = len(failedItems)
	meta.Failures = len(details)
	meta.Duration = duration.Round(time.Millisecond).String()
	meta.DurationSeconds = duration.Seconds()
	meta.Timestamp = a.now().Format(time.RFC3339)

	meta.Status = domain.RunFailure
	if len(details) == 0 && allCompleted {
		meta.Status = domain.RunSuccess
	}

	return &domain.RunReport{Meta: meta, Workers: workers, Details: details}
}
