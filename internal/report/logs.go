package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"ptsplit/internal/domain"
)

const banner = "**********************************"

// CombineLogs writes every worker log to w in worker index order, each
// preceded by a banner naming the worker
func CombineLogs(w io.Writer, results []domain.WorkerResult) error {
	workers := make([]domain.WorkerResult, len(results))
	copy(workers, results)
	sort.SliceStable(workers, func(i, j int) bool { return workers[i].Index < workers[j].Index })

	bw := bufio.NewWriter(w)
	for _, r := range workers {
		fmt.Fprintln(bw, banner)
		fmt.Fprintf(bw, "Parallel testing %d/%d finished (%s)\n", r.Index, len(workers), r.State)

		if r.LogPath == "" {
			continue
		}
		f, err := os.Open(r.LogPath)
		if err != nil {
			fmt.Fprintf(bw, "(no log output: %v)\n", err)
			continue
		}
		_, err = io.Copy(bw, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("copy log of worker %d: %w", r.Index, err)
		}
	}
	return bw.Flush()
}

// WriteCombinedLog writes the combined log to path
func WriteCombinedLog(path string, results []domain.WorkerResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create combined log: %w", err)
	}
	if err := CombineLogs(f, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RemoveWorkerLogs deletes per-worker logs and the given extra files once they are combined
func RemoveWorkerLogs(results []domain.WorkerResult, extra ...string) error {
	var firstErr error
	paths := append([]string{}, extra...)
	for _, r := range results {
		paths = append(paths, r.LogPath)
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WriteFailures writes one failure location per line for rerun tooling.
// Worker-level records have no location and are skipped.
func WriteFailures(path string, details []domain.FailureRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create failures dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create failures file: %w", err)
	}

	bw := bufio.NewWriter(f)
	seen := make(map[string]bool)
	for _, d := range details {
		loc := d.Location
		if loc == "" {
			loc = d.ItemID
		}
		if loc == "" || seen[loc] {
			continue
		}
		seen[loc] = true
		fmt.Fprintln(bw, loc)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write failures file: %w", err)
	}
	return f.Close()
}
