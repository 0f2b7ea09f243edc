package calculator

import (
	"math"

	"github.com/markcheno/go-talib"
)

// CalculateSMA computes the simple moving average of the last period prices.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(prices) < period {
		return 0, insufficient("SMA", period, len(prices))
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// SMASeries returns the rolling SMA for every bar. The first period-1 values are NaN.
func SMASeries(prices []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(prices) < period {
		return nil, insufficient("SMA", period, len(prices))
	}
	return warmup(talib.Sma(prices, period), period-1), nil
}

// EMASeries returns the exponential moving average for every bar, seeded with
// the SMA of the first period values. The first period-1 values are NaN.
func EMASeries(prices []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(prices) < period {
		return nil, insufficient("EMA", period, len(prices))
	}
	return warmup(talib.Ema(prices, period), period-1), nil
}

// CalculateEMA returns the EMA value at the last price.
func CalculateEMA(prices []float64, period int) (float64, error) {
	series, err := EMASeries(prices, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// warmup marks the first n entries of a talib output as undefined.
func warmup(out []float64, n int) []float64 {
	for i := 0; i < n && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}
