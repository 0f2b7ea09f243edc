package calculator

import "github.com/markcheno/go-talib"

// MACD is the moving average convergence/divergence at the last bar.
type MACD struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// CalculateMACD returns EMA(short)-EMA(long), the EMA(signal) of that line
// and their difference.
func CalculateMACD(closes []float64, short, long, signal int) (MACD, error) {
	if short <= 0 || long <= 0 || signal <= 0 {
		return MACD{}, ErrInvalidPeriod
	}
	if short > long {
		short, long = long, short
	}
	need := long + signal - 1
	if len(closes) < need {
		return MACD{}, insufficient("MACD", need, len(closes))
	}
	line, sig, hist := talib.Macd(closes, short, long, signal)
	last := len(closes) - 1
	return MACD{Line: line[last], Signal: sig[last], Histogram: hist[last]}, nil
}
