package calculator

import (
	"errors"

	"SpikeSentinel/internal/model"
)

// CalculatePivotPoints derives floor pivots from a completed bar.
func CalculatePivotPoints(bar model.OHLCV) model.PivotLevels {
	h, l, c := bar.High, bar.Low, bar.Close
	p := (h + l + c) / 3
	return model.PivotLevels{
		Pivot: p,
		R1:    2*p - l,
		S1:    2*p - h,
		R2:    p + (h - l),
		S2:    p - (h - l),
		R3:    h + 2*(p-l),
		S3:    l - 2*(h-p),
	}
}

// LatestPivotPoints computes pivots from the last bar of the series.
func LatestPivotPoints(bars []model.OHLCV) (model.PivotLevels, error) {
	if len(bars) == 0 {
		return model.PivotLevels{}, errors.New("no bars provided")
	}
	return CalculatePivotPoints(bars[len(bars)-1]), nil
}
