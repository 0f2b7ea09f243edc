package calculator

// CalculateRSI computes RSI from the simple average gain and loss over the
// last period price changes. Requires at least period+1 closes.
// A zero average loss yields 100, or 50 when the window has no movement at all.
func CalculateRSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(closes) < period+1 {
		return 0, insufficient("RSI", period+1, len(closes))
	}

	var gain, loss float64
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0, nil
		}
		return 100.0, nil
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs), nil
}
