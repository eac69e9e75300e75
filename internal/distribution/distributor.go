package distribution

import (
	"os"
	"path/filepath"
	"sort"

	"ptsplit/internal/discovery"
)

// Node is one CI node's share of the report
type Node struct {
	Index int
	Tests []string
	Time  float64
}

// ReportDistributor splits the timed tests of a report across CI nodes
type ReportDistributor struct {
	report  Report
	root    string
	pattern string
	total   int
	index   int

	nodes []Node
}

// NewReportDistributor creates a distributor for node index of total
func NewReportDistributor(report Report, root, pattern string, total, index int) *ReportDistributor {
	if total < 1 {
		total = 1
	}
	return &ReportDistributor{report: report, root: root, pattern: pattern, total: total, index: index}
}

// Pattern returns the test file pattern used to select report entries
func (d *ReportDistributor) Pattern() string {
	return d.pattern
}

// Nodes assigns every usable report entry to a node, heaviest first, each to
// the node with the least time so far. Ties go to the lowest node index.
func (d *ReportDistributor) Nodes() []Node {
	if d.nodes != nil {
		return d.nodes
	}

	type entry struct {
		id      string
		seconds float64
	}
	var entries []entry
	for id, seconds := range d.report {
		if !discovery.Match(d.pattern, id) || !d.exists(id) {
			continue
		}
		entries = append(entries, entry{id: id, seconds: seconds})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].seconds != entries[j].seconds {
			return entries[i].seconds > entries[j].seconds
		}
		return entries[i].id < entries[j].id
	})

	nodes := make([]Node, d.total)
	for i := range nodes {
		nodes[i] = Node{Index: i, Tests: []string{}}
	}
	for _, e := range entries {
		lightest := 0
		for i := 1; i < len(nodes); i++ {
			if nodes[i].Time < nodes[lightest].Time {
				lightest = i
			}
		}
		nodes[lightest].Tests = append(nodes[lightest].Tests, e.id)
		nodes[lightest].Time += e.seconds
	}

	d.nodes = nodes
	return nodes
}

// TestsForCurrentNode returns this node's report tests in descending time order
func (d *ReportDistributor) TestsForCurrentNode() []string {
	nodes := d.Nodes()
	if d.index < 0 || d.index >= len(nodes) {
		return []string{}
	}
	return nodes[d.index].Tests
}

func (d *ReportDistributor) exists(id string) bool {
	info, err := os.Stat(filepath.Join(d.root, filepath.FromSlash(id)))
	return err == nil && !info.IsDir()
}

// LeftoverDistributor spreads tests missing from the report across nodes
type LeftoverDistributor struct {
	scanner *discovery.Scanner
	report  Report
	root    string
	pattern string
	total   int
	index   int
}

// NewLeftoverDistributor creates a distributor for node index of total
func NewLeftoverDistributor(scanner *discovery.Scanner, report Report, root, pattern string, total, index int) *LeftoverDistributor {
	if total < 1 {
		total = 1
	}
	return &LeftoverDistributor{scanner: scanner, report: report, root: root, pattern: pattern, total: total, index: index}
}

// LeftoverTests returns every discovered test that has no recorded time, sorted
func (d *LeftoverDistributor) LeftoverTests() ([]string, error) {
	all, err := d.scanner.Scan(d.root, d.pattern)
	if err != nil {
		return nil, err
	}

	leftover := []string{}
	for _, id := range all {
		if _, timed := d.report[id]; !timed {
			leftover = append(leftover, id)
		}
	}
	sort.Strings(leftover)
	return leftover, nil
}

// TestsForCurrentNode returns the leftover tests at positions congruent to the node index
func (d *LeftoverDistributor) TestsForCurrentNode() ([]string, error) {
	leftover, err := d.LeftoverTests()
	if err != nil {
		return nil, err
	}

	tests := []string{}
	for i, id := range leftover {
		if i%d.total == d.index {
			tests = append(tests, id)
		}
	}
	return tests, nil
}
