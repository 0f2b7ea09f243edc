package calculator

import (
	"github.com/markcheno/go-talib"

	"SpikeSentinel/internal/model"
)

// CalculateATR returns the simple mean of the true range over the last period bars.
// True range needs the previous close, so period+1 bars are required.
func CalculateATR(bars []model.OHLCV, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(bars) < period+1 {
		return 0, insufficient("ATR", period+1, len(bars))
	}
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}
	tr := talib.TRange(highs, lows, closes)
	return CalculateSMA(tr[1:], period)
}
