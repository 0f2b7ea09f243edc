package strategy

import (
	"math"

	"SpikeSentinel/internal/detector"
)

// Adjustment is one additive contribution to a timeframe strength.
type Adjustment struct {
	Name  string
	Delta float64
}

// Strength deltas.
const (
	deltaMA        = 0.10
	deltaBands     = 0.15
	deltaBandTouch = 0.10
	deltaSpike     = 0.20
	deltaRSI       = 0.10
	deltaPivot     = 0.15
	deltaTrend     = 0.10
)

// scoreStrength starts at neutral and applies every matching adjustment.
// The result is clamped to [0,1].
func scoreStrength(a *Analysis, p Params) (float64, []Adjustment) {
	var adj []Adjustment
	add := func(name string, d float64) {
		if d != 0 {
			adj = append(adj, Adjustment{Name: name, Delta: d})
		}
	}

	add("short_ma", levelDelta(a.ShortMA, a.NearShortMA, deltaMA))
	add("long_ma", levelDelta(a.LongMA, a.NearLongMA, deltaMA))
	add("bollinger", levelDelta(a.Bands, true, deltaBands))

	switch a.NearBand {
	case detector.BandLower:
		add("lower_band", deltaBandTouch)
	case detector.BandUpper:
		add("upper_band", -deltaBandTouch)
	}

	if a.SpikeNow {
		add("spike", -deltaSpike)
	}

	rsi := a.Snapshot.RSI
	switch {
	case rsi < p.RSIOversold:
		add("rsi_oversold", deltaRSI)
	case rsi > p.RSIOverbought:
		add("rsi_overbought", -deltaRSI)
	}

	if a.NearPivotS1 {
		add("pivot_support", deltaPivot)
	}
	if a.NearPivotR1 {
		add("pivot_resistance", -deltaPivot)
	}

	switch a.Trend {
	case TrendUp:
		add("uptrend", deltaTrend)
	case TrendDown:
		add("downtrend", -deltaTrend)
	}

	strength := neutralStrength
	for _, x := range adj {
		strength += x.Delta
	}
	return clamp01(strength), adj
}

// levelDelta is +d for support, -d for resistance, when near is true.
func levelDelta(l detector.Level, near bool, d float64) float64 {
	if !near {
		return 0
	}
	switch l {
	case detector.Support:
		return d
	case detector.Resistance:
		return -d
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
