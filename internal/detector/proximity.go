package detector

import (
	"math"

	"SpikeSentinel/internal/calculator"
	"SpikeSentinel/internal/model"
)

// Band names which Bollinger band price is touching.
type Band string

const (
	BandUpper Band = "upper_band"
	BandLower Band = "lower_band"
	BandNone  Band = "neutral"
)

// IsNear reports whether |price-level|/level <= tolerance.
// An undefined or zero level is never near.
func IsNear(price, level, tolerance float64) bool {
	if level == 0 || math.IsNaN(level) || math.IsNaN(price) {
		return false
	}
	return math.Abs(price-level)/math.Abs(level) <= tolerance
}

// NearMA reports whether the last close is within tolerance of MA(period).
func NearMA(series *model.PriceSeries, period int, tolerance float64) (bool, error) {
	ma, err := calculator.CalculateSMA(series.Closes(), period)
	if err != nil {
		return false, err
	}
	return IsNear(series.LastClose(), ma, tolerance), nil
}

// NearBand reports which band, if any, price is within tolerance of.
// The upper band wins when both are in range.
func NearBand(price float64, bands calculator.Bands, tolerance float64) Band {
	switch {
	case IsNear(price, bands.Upper, tolerance):
		return BandUpper
	case IsNear(price, bands.Lower, tolerance):
		return BandLower
	default:
		return BandNone
	}
}
