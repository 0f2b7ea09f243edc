package strategy

import "SpikeSentinel/internal/calculator"

// Params tunes the per-timeframe evaluator.
type Params struct {
	ShortMA        int
	LongMA         int
	RSIPeriod      int
	RSIOversold    float64
	RSIOverbought  float64
	BBPeriod       int
	BBStdDev       float64
	MATolerance    float64
	BandTolerance  float64
	PivotTolerance float64
	SpikeWindow    int
	SpikeThreshold float64
	TrendShort     int
	TrendLong      int
}

// DefaultParams returns the standard evaluator settings.
func DefaultParams() Params {
	return Params{
		ShortMA:        10,
		LongMA:         48,
		RSIPeriod:      14,
		RSIOversold:    30,
		RSIOverbought:  70,
		BBPeriod:       20,
		BBStdDev:       2,
		MATolerance:    0.05,
		BandTolerance:  0.02,
		PivotTolerance: 0.01,
		SpikeWindow:    20,
		SpikeThreshold: 1.5,
		TrendShort:     50,
		TrendLong:      200,
	}
}

func (p Params) snapshotParams() calculator.SnapshotParams {
	sp := calculator.DefaultSnapshotParams()
	sp.ShortMA = p.ShortMA
	sp.LongMA = p.LongMA
	sp.TrendShort = p.TrendShort
	sp.TrendLong = p.TrendLong
	sp.RSIPeriod = p.RSIPeriod
	sp.BBPeriod = p.BBPeriod
	sp.BBStdDev = p.BBStdDev
	return sp
}

// MinBars is the shortest series the evaluator can judge.
func (p Params) MinBars() int {
	n := p.ShortMA
	if p.LongMA > n {
		n = p.LongMA
	}
	if p.BBPeriod > n {
		n = p.BBPeriod
	}
	return n + 1
}
