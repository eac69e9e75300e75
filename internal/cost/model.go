// Package cost assigns a scheduling weight to every work item.
package cost

import (
	"os"
	"path/filepath"

	"ptsplit/internal/domain"
)

// SizeFunc returns the size of an item in bytes, or false when it cannot be read
type SizeFunc func(id string) (int64, bool)

// Model resolves weights from recorded durations, falling back to file size
type Model struct {
	durations map[string]float64
	size      SizeFunc
}

// NewModel creates a Model. durations may be nil; size may be nil, in which case
// every untimed item gets a fallback weight of 0.
func NewModel(durations map[string]float64, size SizeFunc) *Model {
	return &Model{durations: durations, size: size}
}

// FileSize returns a SizeFunc that stats item paths relative to root
func FileSize(root string) SizeFunc {
	return func(id string) (int64, bool) {
		p := id
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, id)
		}
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			return 0, false
		}
		return info.Size(), true
	}
}

// Weigh produces one WeightedItem per id, in input order. It never drops an item.
func (m *Model) Weigh(ids []string) []domain.WeightedItem {
	out := make([]domain.WeightedItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.weigh(id))
	}
	return out
}

func (m *Model) weigh(id string) domain.WeightedItem {
	item := domain.WorkItem{ID: id}
	if d, ok := m.durations[id]; ok {
		item.Duration = &d
		return domain.WeightedItem{Item: item, Weight: d, Source: domain.SourceTimed}
	}

	var weight float64
	if m.size != nil {
		if size, ok := m.size(id); ok {
			item.Size = &size
			weight = float64(size)
		}
	}
	return domain.WeightedItem{Item: item, Weight: weight, Source: domain.SourceFallback}
}

// HasTimings reports whether any item was weighted from a recorded duration
func HasTimings(items []domain.WeightedItem) bool {
	for _, item := range items {
		if item.Source == domain.SourceTimed {
			return true
		}
	}
	return false
}
