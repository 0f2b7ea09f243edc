package strategy

import "SpikeSentinel/internal/calculator"

// Trend is the direction implied by a fast/slow EMA pair.
type Trend string

const (
	TrendUp       Trend = "uptrend"
	TrendDown     Trend = "downtrend"
	TrendSideways Trend = "sideways"
)

// DetectTrend compares EMA(short) with EMA(long) at the last close.
// Without enough history for the slow EMA the market counts as sideways.
func DetectTrend(closes []float64, short, long int) Trend {
	fast, err := calculator.CalculateEMA(closes, short)
	if err != nil {
		return TrendSideways
	}
	slow, err := calculator.CalculateEMA(closes, long)
	if err != nil {
		return TrendSideways
	}
	switch {
	case fast > slow:
		return TrendUp
	case fast < slow:
		return TrendDown
	default:
		return TrendSideways
	}
}
