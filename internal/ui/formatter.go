package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"ptsplit/internal/domain"
	"ptsplit/internal/execution"
)

// Formatter formats and displays run output
type Formatter struct {
	w io.Writer

	cyan   *color.Color
	green  *color.Color
	red    *color.Color
	yellow *color.Color
	white  *color.Color
}

// NewFormatter creates a Formatter writing to stdout
func NewFormatter() *Formatter {
	return NewFormatterTo(os.Stdout)
}

// NewFormatterTo creates a Formatter writing to w
func NewFormatterTo(w io.Writer) *Formatter {
	return &Formatter{
		w:      w,
		cyan:   color.New(color.FgCyan),
		green:  color.New(color.FgGreen),
		red:    color.New(color.FgRed),
		yellow: color.New(color.FgYellow),
		white:  color.New(color.FgWhite),
	}
}

// PrintPlan prints the weighted node tests and the slice each worker gets
func (f *Formatter) PrintPlan(items []domain.WeightedItem, slices []domain.Slice, strategy string) {
	timed := 0
	for _, item := range items {
		if item.Source == domain.SourceTimed {
			timed++
		}
	}
	f.green.Fprintf(f.w, "Found %d test file(s), %d with recorded time\n\n", len(items), timed)

	weights := make(map[string]domain.WeightedItem, len(items))
	for _, item := range items {
		weights[item.ID()] = item
	}

	f.cyan.Fprintf(f.w, "%d worker(s), %s split\n", len(slices), strategy)
	for i, slice := range slices {
		f.yellow.Fprintf(f.w, "worker %d (%d files, %s)\n", i, len(slice), sliceWeight(slice, weights))
		for j, id := range slice {
			connector := "├── "
			if j == len(slice)-1 {
				connector = "└── "
			}
			fmt.Fprintf(f.w, "  %s%s %s\n", connector, id, formatWeight(weights[id]))
		}
	}
}

func formatWeight(item domain.WeightedItem) string {
	if item.Source == domain.SourceTimed {
		return color.HiBlackString("%.2fs", item.Weight)
	}
	return color.HiBlackString("%dB", int64(item.Weight))
}

func sliceWeight(slice domain.Slice, weights map[string]domain.WeightedItem) string {
	var seconds, bytes float64
	for _, id := range slice {
		if w := weights[id]; w.Source == domain.SourceTimed {
			seconds += w.Weight
		} else {
			bytes += w.Weight
		}
	}
	return fmt.Sprintf("%.2fs + %dB", seconds, int64(bytes))
}

// PrintRunHeader announces a run
func (f *Formatter) PrintRunHeader(runID string, workers, items int) {
	f.cyan.Fprintf(f.w, "Run %s: %d test file(s) on %d worker(s)\n", runID, items, workers)
}

// PrintWorkerFinished prints one line per finished worker
func (f *Formatter) PrintWorkerFinished(result domain.WorkerResult, workers int) {
	counts := ""
	if result.Counted {
		counts = fmt.Sprintf(", %d examples, %d failures", result.Examples, result.ExampleFailures)
	}

	label := fmt.Sprintf("Parallel testing %d/%d finished", result.Index, workers)
	duration := result.Duration.Round(time.Millisecond)
	switch {
	case result.State.Abnormal():
		reason := result.Signal
		if reason == "" {
			reason = result.Error
		}
		f.red.Fprintf(f.w, "✗ %s: %s (%s)%s\n", label, result.State, reason, counts)
	case result.ExitCode != 0 || len(result.Failures) > 0:
		f.red.Fprintf(f.w, "✗ %s: exit %d in %s%s\n", label, result.ExitCode, duration, counts)
	default:
		f.green.Fprintf(f.w, "✓ %s in %s%s\n", label, duration, counts)
	}
}

// PrintRecovery prints what a recovery scan cleaned up
func (f *Formatter) PrintRecovery(rep *execution.RecoveryReport) {
	if !rep.Found {
		f.green.Fprintln(f.w, "✓ No stale run found")
		return
	}
	f.yellow.Fprintf(f.w, "Recovered stale run %s\n", rep.RunID)
	fmt.Fprintf(f.w, "  killed workers:     %d\n", len(rep.Killed))
	fmt.Fprintf(f.w, "  exited workers:     %d\n", len(rep.Reaped))
	fmt.Fprintf(f.w, "  released resources: %d\n", len(rep.Released))
	for _, w := range rep.StillRunning {
		f.yellow.Fprintf(f.w, "  ! worker %d still running (pid %d)\n", w.Index, w.PID)
	}
	for _, h := range rep.Unreleased {
		f.yellow.Fprintf(f.w, "  ! resource %s not released\n", h.Name)
	}
	for _, err := range rep.Errors {
		f.red.Fprintf(f.w, "  ✗ %v\n", err)
	}
}

// PrintSummary prints the statistics table of a report followed by its failure tree
func (f *Formatter) PrintSummary(rep *domain.RunReport) {
	meta := rep.Meta

	fmt.Fprintln(f.w)
	f.cyan.Fprintln(f.w, "╔═══════════════════════════════════════════════════════════════╗")
	f.cyan.Fprintln(f.w, "║                    Test Execution Statistics                  ║")
	f.cyan.Fprintln(f.w, "╚═══════════════════════════════════════════════════════════════╝")

	rows := []struct {
		label string
		value string
		c     *color.Color
	}{
		{"Run", meta.RunID, f.white},
		{"Total Test Files", fmt.Sprint(meta.TotalItems), f.white},
		{"Workers", fmt.Sprint(meta.Workers), f.white},
		{"Failed Workers", fmt.Sprint(meta.FailedWorkers), f.red},
		{"Crashed Workers", fmt.Sprint(meta.CrashedWorkers), f.red},
		{"Failed Test Files", fmt.Sprint(meta.FailedItems), f.red},
		{"Failures", fmt.Sprint(meta.Failures), f.red},
		{"Duration", fmt.Sprintf("%.2fs", meta.DurationSeconds), f.white},
	}

	fmt.Fprintln(f.w, "┌─────────────────────────────────┬─────────────────────────────┐")
	for i, row := range rows {
		fmt.Fprintf(f.w, "│ %-31s │ ", row.label)
		row.c.Fprintf(f.w, "%-27s", row.value)
		fmt.Fprintln(f.w, " │")
		if i < len(rows)-1 {
			fmt.Fprintln(f.w, "├─────────────────────────────────┼─────────────────────────────┤")
		}
	}
	fmt.Fprintln(f.w, "└─────────────────────────────────┴─────────────────────────────┘")

	fmt.Fprintln(f.w)
	if rep.Succeeded() {
		f.green.Fprintln(f.w, "✓ All tests passed!")
		return
	}
	f.red.Fprintf(f.w, "✗ %d failure(s) across %d worker(s)\n\n", meta.Failures, meta.FailedWorkers+meta.CrashedWorkers)
	f.PrintFailureTree(rep.Details)
	if meta.CombinedLog != "" {
		fmt.Fprintf(f.w, "\nFull output: %s\n", meta.CombinedLog)
	}
}

// TreeNode represents a node in the file tree structure
type TreeNode struct {
	Name     string
	Children map[string]*TreeNode
	Failures []domain.FailureRecord
	IsFile   bool
}

// PrintFailureTree prints failures grouped by directory and file. Worker-level
// failures are listed after the tree.
func (f *Formatter) PrintFailureTree(failures []domain.FailureRecord) {
	root := &TreeNode{Children: make(map[string]*TreeNode)}
	var workerLevel []domain.FailureRecord

	for _, failure := range failures {
		if failure.WorkerLevel() {
			workerLevel = append(workerLevel, failure)
			continue
		}
		current := root
		parts := strings.Split(strings.TrimPrefix(failure.ItemID, "./"), "/")
		for i, part := range parts {
			if part == "" {
				continue
			}
			if current.Children[part] == nil {
				current.Children[part] = &TreeNode{
					Name:     part,
					Children: make(map[string]*TreeNode),
					IsFile:   i == len(parts)-1,
				}
			}
			current = current.Children[part]
		}
		current.Failures = append(current.Failures, failure)
	}

	f.printTreeNode(root, "")

	for _, failure := range workerLevel {
		f.red.Fprintf(f.w, "worker %d: %s\n", failure.WorkerIndex, failure.Detail)
	}
}

func (f *Formatter) printTreeNode(node *TreeNode, prefix string) {
	keys := make([]string, 0, len(node.Children))
	for key := range node.Children {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for i, key := range keys {
		child := node.Children[key]
		last := i == len(keys)-1

		connector, childPrefix := "├── ", "│   "
		if last {
			connector, childPrefix = "└── ", "    "
		}

		if child.IsFile {
			f.yellow.Fprintf(f.w, "%s%s%s\n", prefix, connector, child.Name)
			for j, failure := range child.Failures {
				caseConnector := "├── "
				if j == len(child.Failures)-1 {
					caseConnector = "└── "
				}
				f.red.Fprintf(f.w, "%s%s%s%s\n", prefix, childPrefix, caseConnector, failureLabel(failure))
			}
		} else {
			f.cyan.Fprintf(f.w, "%s%s%s\n", prefix, connector, child.Name)
		}
		f.printTreeNode(child, prefix+childPrefix)
	}
}

func failureLabel(failure domain.FailureRecord) string {
	label := failure.Description
	if label == "" {
		label = failure.Detail
	}
	if failure.Location != "" {
		label += " (" + failure.Location + ")"
	}
	return label
}
