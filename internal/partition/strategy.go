package partition

import (
	"fmt"
	"strings"

	"ptsplit/internal/domain"
)

// Strategy selects how items are assigned to worker slices
type Strategy int

const (
	// StrategyAuto uses weighted zig-zag when any item has a recorded duration, contiguous otherwise
	StrategyAuto Strategy = iota
	// StrategyContiguous splits the input into order-preserving runs
	StrategyContiguous
	// StrategyWeighted sweeps items sorted by weight across workers forward then backward
	StrategyWeighted
)

// ParseStrategy converts a flag value into a Strategy
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return StrategyAuto, nil
	case "contiguous":
		return StrategyContiguous, nil
	case "weighted", "zigzag", "zig-zag":
		return StrategyWeighted, nil
	}
	return StrategyAuto, fmt.Errorf("unknown partition strategy %q (want auto, contiguous or weighted)", name)
}

func (s Strategy) String() string {
	switch s {
	case StrategyContiguous:
		return "contiguous"
	case StrategyWeighted:
		return "weighted"
	default:
		return "auto"
	}
}

// Resolve turns StrategyAuto into a concrete strategy for the given items
func (s Strategy) Resolve(items []domain.WeightedItem) Strategy {
	if s != StrategyAuto {
		return s
	}
	for _, item := range items {
		if item.Source == domain.SourceTimed {
			return StrategyWeighted
		}
	}
	return StrategyContiguous
}
