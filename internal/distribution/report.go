// Package distribution decides which test files belong to the current CI node.
package distribution

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
)

// ErrNoReport is returned when the timing report file does not exist
var ErrNoReport = errors.New("timing report not found")

// Report maps test file paths to recorded durations in seconds
type Report map[string]float64

// LoadReport reads a timing report such as knapsack_rspec_report.json
func LoadReport(p string) (Report, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Report{}, fmt.Errorf("%w: %s", ErrNoReport, p)
		}
		return nil, fmt.Errorf("failed to read timing report: %w", err)
	}

	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse timing report %s: %w", p, err)
	}

	report := make(Report, len(raw))
	for id, seconds := range raw {
		if seconds < 0 {
			return nil, fmt.Errorf("timing report %s: negative duration for %s", p, id)
		}
		report[NormalizeID(id)] = seconds
	}
	return report, nil
}

// NormalizeID turns "./spec/a_spec.rb" into "spec/a_spec.rb"
func NormalizeID(id string) string {
	return strings.TrimPrefix(path.Clean(strings.ReplaceAll(strings.TrimSpace(id), "\\", "/")), "./")
}

// Total returns the sum of all recorded durations
func (r Report) Total() float64 {
	var total float64
	for _, seconds := range r {
		total += seconds
	}
	return total
}
