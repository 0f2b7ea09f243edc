package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"SpikeSentinel/internal/model"
)

// weightTolerance is how far a weight sum may drift from 1.
const weightTolerance = 1e-6

var (
	ErrNoWeights   = errors.New("no timeframe weights configured")
	ErrWeightSum   = errors.New("timeframe weights must sum to 1")
	ErrZeroWeights = errors.New("timeframe weights sum to zero")
)

// Weights assigns a share of the composite to each timeframe.
type Weights map[model.Timeframe]float64

// Validate rejects empty, negative, or non-normalized weights.
func (w Weights) Validate() error {
	if len(w) == 0 {
		return ErrNoWeights
	}
	sum := 0.0
	for tf, v := range w {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight for %s must be non-negative, got %v", tf, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: got %.6f", ErrWeightSum, sum)
	}
	return nil
}

// Normalize returns a copy scaled to sum to 1.
func (w Weights) Normalize() (Weights, error) {
	if len(w) == 0 {
		return nil, ErrNoWeights
	}
	sum := 0.0
	for tf, v := range w {
		if v < 0 {
			return nil, fmt.Errorf("weight for %s must be non-negative, got %v", tf, v)
		}
		sum += v
	}
	if sum == 0 {
		return nil, ErrZeroWeights
	}
	out := make(Weights, len(w))
	for tf, v := range w {
		out[tf] = v / sum
	}
	return out, nil
}

// Timeframes returns the weighted timeframes from shortest to longest.
func (w Weights) Timeframes() []model.Timeframe {
	tfs := make([]model.Timeframe, 0, len(w))
	for tf := range w {
		tfs = append(tfs, tf)
	}
	SortTimeframes(tfs)
	return tfs
}

// SortTimeframes orders timeframes by bar duration.
func SortTimeframes(tfs []model.Timeframe) {
	sort.Slice(tfs, func(i, j int) bool {
		di, dj := tfs[i].Duration(), tfs[j].Duration()
		if di != dj {
			return di < dj
		}
		return tfs[i] < tfs[j]
	})
}
