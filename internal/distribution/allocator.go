package distribution

import (
	"fmt"
	"strings"
	"sync"

	"ptsplit/internal/discovery"
)

// Options configures an Allocator
type Options struct {
	Root      string
	Pattern   string
	Report    Report
	NodeTotal int
	NodeIndex int
	Scanner   *discovery.Scanner
}

// Allocator yields the ordered test list of the current CI node
type Allocator struct {
	report    *ReportDistributor
	leftover  *LeftoverDistributor
	durations Report

	once          sync.Once
	reportTests   []string
	leftoverTests []string
	err           error
}

// NewAllocator creates an Allocator
func NewAllocator(opts Options) (*Allocator, error) {
	if opts.NodeTotal < 1 {
		opts.NodeTotal = 1
	}
	if opts.NodeIndex < 0 || opts.NodeIndex >= opts.NodeTotal {
		return nil, fmt.Errorf("node index %d out of range for %d nodes", opts.NodeIndex, opts.NodeTotal)
	}
	if opts.Report == nil {
		opts.Report = Report{}
	}
	if opts.Scanner == nil {
		opts.Scanner = discovery.NewScanner(nil)
	}

	return &Allocator{
		report:    NewReportDistributor(opts.Report, opts.Root, opts.Pattern, opts.NodeTotal, opts.NodeIndex),
		leftover:  NewLeftoverDistributor(opts.Scanner, opts.Report, opts.Root, opts.Pattern, opts.NodeTotal, opts.NodeIndex),
		durations: opts.Report,
	}, nil
}

func (a *Allocator) load() {
	a.once.Do(func() {
		a.reportTests = a.report.TestsForCurrentNode()
		a.leftoverTests, a.err = a.leftover.TestsForCurrentNode()
	})
}

// ReportNodeTests returns the node's tests that have recorded times
func (a *Allocator) ReportNodeTests() ([]string, error) {
	a.load()
	return a.reportTests, a.err
}

// LeftoverNodeTests returns the node's tests without recorded times
func (a *Allocator) LeftoverNodeTests() ([]string, error) {
	a.load()
	return a.leftoverTests, a.err
}

// NodeTests returns report tests followed by leftover tests
func (a *Allocator) NodeTests() ([]string, error) {
	a.load()
	if a.err != nil {
		return nil, a.err
	}
	tests := make([]string, 0, len(a.reportTests)+len(a.leftoverTests))
	tests = append(tests, a.reportTests...)
	return append(tests, a.leftoverTests...), nil
}

// Durations returns the recorded durations of this node's report tests
func (a *Allocator) Durations() map[string]float64 {
	a.load()
	out := make(map[string]float64, len(a.reportTests))
	for _, id := range a.reportTests {
		out[id] = a.durations[id]
	}
	return out
}

// TestDir returns the pattern prefix up to and including the first slash
func (a *Allocator) TestDir() string {
	pattern := a.report.Pattern()
	if i := strings.Index(pattern, "/"); i >= 0 {
		return pattern[:i+1]
	}
	return ""
}
