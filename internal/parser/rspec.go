package parser

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"ptsplit/internal/domain"
)

var (
	// rspec ./spec/models/user_spec.rb:42 # User validates email
	failedExamplePattern = regexp.MustCompile(`^rspec\s+(\S+)(?:\s+#\s*(.*))?$`)
	// 12 examples, 3 failures[, 1 pending]
	summaryPattern = regexp.MustCompile(`(\d+)\s+examples?,\s+(\d+)\s+failures?`)
	ansiPattern    = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	lineSuffix     = regexp.MustCompile(`(:\d+)+$`)
	idSuffix       = regexp.MustCompile(`\[[\d:,]+\]$`)
)

// RSpecParser parses rspec output
type RSpecParser struct{}

var _ Parser = (*RSpecParser)(nil)

// NewRSpecParser creates a new RSpecParser
func NewRSpecParser() *RSpecParser {
	return &RSpecParser{}
}

// ParseFailures returns the "Failed examples" lines of the output, in order
func (p *RSpecParser) ParseFailures(output string) []Failure {
	var failures []Failure
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(ansiPattern.ReplaceAllString(line, ""))
		m := failedExamplePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		failures = append(failures, Failure{Location: m[1], Description: strings.TrimSpace(m[2])})
	}
	return failures
}

// ParseCounts extracts the example and failure totals of the last summary line.
// ok is false when the output has no summary (e.g. the runner died early).
func (p *RSpecParser) ParseCounts(output string) (examples, failures int, ok bool) {
	matches := summaryPattern.FindAllStringSubmatch(ansiPattern.ReplaceAllString(output, ""), -1)
	if len(matches) == 0 {
		return 0, 0, false
	}
	last := matches[len(matches)-1]
	examples, _ = strconv.Atoi(last[1])
	failures, _ = strconv.Atoi(last[2])
	return examples, failures, true
}

// ParseFailuresFile reads a failures file: one location per line, optionally
// in the "rspec <location> # <description>" form
func (p *RSpecParser) ParseFailuresFile(content string) []Failure {
	var failures []Failure
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if m := failedExamplePattern.FindStringSubmatch(line); m != nil {
			failures = append(failures, Failure{Location: m[1], Description: strings.TrimSpace(m[2])})
			continue
		}
		failures = append(failures, Failure{Location: line})
	}
	return failures
}

// ReadCounts reads the example and failure totals from a worker log.
// ok is false when the log is missing or has no summary line.
func ReadCounts(p Parser, logPath string) (examples, failures int, ok bool) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return 0, 0, false
	}
	return p.ParseCounts(string(data))
}

// ItemPath strips the "./" prefix and any line number or example id from a location
func ItemPath(location string) string {
	p := filepath.ToSlash(strings.TrimSpace(location))
	p = idSuffix.ReplaceAllString(p, "")
	p = lineSuffix.ReplaceAllString(p, "")
	return strings.TrimPrefix(p, "./")
}

// Collect builds the item-level failure records of one worker from its log and
// optional failures file. Records are ordered by the item's position in the
// slice, then by order of appearance; duplicates by location are dropped.
func Collect(p Parser, workerIndex int, items domain.Slice, logPath, failuresPath string) []domain.FailureRecord {
	var found []Failure
	if data, err := os.ReadFile(logPath); err == nil {
		found = append(found, p.ParseFailures(string(data))...)
	}
	if failuresPath != "" {
		if data, err := os.ReadFile(failuresPath); err == nil {
			found = append(found, p.ParseFailuresFile(string(data))...)
		}
	}

	position := make(map[string]int, len(items))
	for i, item := range items {
		position[ItemPath(item)] = i
	}

	type ranked struct {
		record domain.FailureRecord
		pos    int
	}
	var out []ranked
	seen := make(map[string]bool)
	for _, f := range found {
		if seen[f.Location] {
			continue
		}
		seen[f.Location] = true

		path := ItemPath(f.Location)
		itemID := path
		pos, ok := position[path]
		if ok {
			itemID = items[pos]
		} else {
			pos = len(items)
		}
		detail := f.Description
		if detail == "" {
			detail = "failed: " + f.Location
		}
		out = append(out, ranked{
			record: domain.FailureRecord{
				ItemID:      itemID,
				WorkerIndex: workerIndex,
				Location:    f.Location,
				Description: f.Description,
				Detail:      detail,
			},
			pos: pos,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].pos < out[j].pos })

	records := make([]domain.FailureRecord, len(out))
	for i, r := range out {
		records[i] = r.record
	}
	return records
}
