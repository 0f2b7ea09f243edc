// Package detector classifies moving averages and Bollinger Bands as support
// or resistance and flags abnormal price moves.
package detector

import (
	"SpikeSentinel/internal/calculator"
	"SpikeSentinel/internal/model"
)

// Level is the role a moving average or band plays for the latest bar.
type Level string

const (
	Support    Level = "support"
	Resistance Level = "resistance"
	Neutral    Level = "neutral"
)

// minBounces is the number of MA crossings that marks an active boundary.
const minBounces = 2

// ClassifyMA decides whether the SMA(period) acts as support or resistance.
//
// A fresh cross on the last two bars gives the first call: upward means
// resistance, downward means support. Resistance under a rising MA and support
// under a falling MA are downgraded to neutral. If the call is still neutral
// and price crossed the MA at least twice inside the trailing window, the
// side of price decides: above is resistance, below is support.
func ClassifyMA(series *model.PriceSeries, period int) (Level, error) {
	closes := series.Closes()
	if len(closes) < period+1 {
		return Neutral, &calculator.InsufficientDataError{Indicator: "MA classifier", Need: period + 1, Have: len(closes)}
	}
	ma, err := calculator.SMASeries(closes, period)
	if err != nil {
		return Neutral, err
	}

	last, prev := len(closes)-1, len(closes)-2
	state := Neutral
	switch {
	case closes[last] > ma[last]:
		if closes[prev] < ma[prev] {
			state = Resistance
		}
	case closes[last] < ma[last]:
		if closes[prev] > ma[prev] {
			state = Support
		}
	}

	slope := ma[last] - ma[prev]
	if state == Resistance && slope > 0 {
		state = Neutral
	} else if state == Support && slope < 0 {
		state = Neutral
	}

	if state == Neutral && countBounces(closes, ma, period) >= minBounces {
		if closes[last] > ma[last] {
			state = Resistance
		} else if closes[last] < ma[last] {
			state = Support
		}
	}
	return state, nil
}

// countBounces counts crossings between consecutive bars over the trailing
// window, excluding the latest bar. Bars without an MA value never count.
func countBounces(closes, ma []float64, period int) int {
	n := len(closes)
	bounces := 0
	for i := n - period; i < n-1; i++ {
		if i < 1 {
			continue
		}
		up := closes[i] > ma[i] && closes[i-1] < ma[i-1]
		down := closes[i] < ma[i] && closes[i-1] > ma[i-1]
		if up || down {
			bounces++
		}
	}
	return bounces
}

// ClassifyBollinger applies the last-two-bars cross rule to the bands: a close
// at or below the lower band after closing above it is support, a close at or
// above the upper band after closing below it is resistance.
func ClassifyBollinger(series *model.PriceSeries, period int, stdDev float64) (Level, error) {
	closes := series.Closes()
	if len(closes) < period+1 {
		return Neutral, &calculator.InsufficientDataError{Indicator: "Bollinger classifier", Need: period + 1, Have: len(closes)}
	}
	bands, err := calculator.BollingerSeries(closes, period, stdDev)
	if err != nil {
		return Neutral, err
	}
	last, prev := len(closes)-1, len(closes)-2
	switch {
	case closes[last] <= bands[last].Lower && closes[prev] > bands[prev].Lower:
		return Support, nil
	case closes[last] >= bands[last].Upper && closes[prev] < bands[prev].Upper:
		return Resistance, nil
	default:
		return Neutral, nil
	}
}
