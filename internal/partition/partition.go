// Package partition turns a weighted list of work items into balanced worker slices.
package partition

import (
	"errors"
	"fmt"
	"sort"

	"ptsplit/internal/domain"
)

const (
	// DefaultParallelThreshold is the largest item count that is never parallelized
	DefaultParallelThreshold = 2
	// DefaultMinimumPerProcess is the smallest share a worker may receive
	DefaultMinimumPerProcess = 1
)

var (
	ErrDuplicateItem  = errors.New("duplicate work item")
	ErrNegativeWeight = errors.New("negative weight")
)

// Partitioner distributes items across a variable number of workers
type Partitioner struct {
	parallelThreshold int
	minimumPerProcess int
}

// New creates a Partitioner. A minimum below 1 is treated as 1.
func New(parallelThreshold, minimumPerProcess int) *Partitioner {
	if minimumPerProcess < 1 {
		minimumPerProcess = 1
	}
	return &Partitioner{
		parallelThreshold: parallelThreshold,
		minimumPerProcess: minimumPerProcess,
	}
}

// NewDefault creates a Partitioner with the default threshold and minimum
func NewDefault() *Partitioner {
	return New(DefaultParallelThreshold, DefaultMinimumPerProcess)
}

// WorkerCount adjusts the requested worker count so every worker gets at least the minimum share
func (p *Partitioner) WorkerCount(items, requested int) int {
	if requested < 1 || items <= p.parallelThreshold {
		return 1
	}
	workers := requested
	for workers > 1 && items/workers < p.minimumPerProcess {
		workers--
	}
	return workers
}

// Partition validates the items and assigns them to slices with the given strategy.
// The number of slices equals WorkerCount(len(items), requested).
func (p *Partitioner) Partition(items []domain.WeightedItem, requested int, strategy Strategy) ([]domain.Slice, error) {
	if err := Validate(items); err != nil {
		return nil, err
	}

	workers := p.WorkerCount(len(items), requested)
	if workers <= 1 {
		return []domain.Slice{domain.IDs(items)}, nil
	}

	switch strategy.Resolve(items) {
	case StrategyWeighted:
		return WeightedZigZag(items, workers), nil
	default:
		return Contiguous(domain.IDs(items), workers), nil
	}
}

// Validate rejects duplicate identifiers and negative weights
func Validate(items []domain.WeightedItem) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ID()]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateItem, item.ID())
		}
		seen[item.ID()] = struct{}{}
		if item.Weight < 0 {
			return fmt.Errorf("%w: %s has %v", ErrNegativeWeight, item.ID(), item.Weight)
		}
	}
	return nil
}

// Contiguous splits ids into workers order-preserving runs. Every run gets len/workers
// items and the first len%workers runs one extra.
func Contiguous(ids []string, workers int) []domain.Slice {
	if workers < 1 {
		workers = 1
	}
	slices := make([]domain.Slice, 0, workers)
	size := len(ids) / workers
	remain := len(ids) % workers
	index := 0
	for i := 0; i < workers; i++ {
		end := index + size
		if i < remain {
			end++
		}
		slices = append(slices, append(domain.Slice{}, ids[index:end]...))
		index = end
	}
	return slices
}

// WeightedZigZag sorts items by weight (timed before fallback, heaviest first, stable)
// and sweeps them across worker slots 0..w-1 then w-1..0, repeating.
func WeightedZigZag(items []domain.WeightedItem, workers int) []domain.Slice {
	if workers < 1 {
		workers = 1
	}
	sorted := append([]domain.WeightedItem(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti := sorted[i].Source == domain.SourceTimed
		tj := sorted[j].Source == domain.SourceTimed
		if ti != tj {
			return ti
		}
		return sorted[i].Weight > sorted[j].Weight
	})

	slices := make([]domain.Slice, workers)
	for i := range slices {
		slices[i] = domain.Slice{}
	}
	for i, item := range sorted {
		slot := zigZagSlot(i, workers)
		slices[slot] = append(slices[slot], item.ID())
	}
	return slices
}

// zigZagSlot maps the i-th sorted item to a worker slot
func zigZagSlot(i, workers int) int {
	pos := i % (2 * workers)
	if pos < workers {
		return pos
	}
	return 2*workers - 1 - pos
}
