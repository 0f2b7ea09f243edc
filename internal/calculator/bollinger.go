package calculator

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Bands is one Bollinger Band observation.
type Bands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// CalculateBollinger returns SMA(period) ± k sample standard deviations at the last close.
func CalculateBollinger(closes []float64, period int, k float64) (Bands, error) {
	if period <= 1 {
		return Bands{}, ErrInvalidPeriod
	}
	if len(closes) < period {
		return Bands{}, insufficient("Bollinger", period, len(closes))
	}
	return bandsOf(closes[len(closes)-period:], k), nil
}

// BollingerSeries returns the bands for every bar. Bars inside the warm-up
// window hold NaN bands.
func BollingerSeries(closes []float64, period int, k float64) ([]Bands, error) {
	if period <= 1 {
		return nil, ErrInvalidPeriod
	}
	if len(closes) < period {
		return nil, insufficient("Bollinger", period, len(closes))
	}
	out := make([]Bands, len(closes))
	nan := math.NaN()
	for i := range closes {
		if i < period-1 {
			out[i] = Bands{Upper: nan, Middle: nan, Lower: nan}
			continue
		}
		out[i] = bandsOf(closes[i-period+1:i+1], k)
	}
	return out, nil
}

func bandsOf(window []float64, k float64) Bands {
	mean, std := stat.MeanStdDev(window, nil)
	return Bands{Upper: mean + k*std, Middle: mean, Lower: mean - k*std}
}
