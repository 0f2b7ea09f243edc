package calculator

import (
	"math"

	"SpikeSentinel/internal/model"
)

// Indicator names used in IndicatorSnapshot.Missing.
const (
	NameMAShort  = "ma_short"
	NameMALong   = "ma_long"
	NameEMAShort = "ema_short"
	NameEMALong  = "ema_long"
	NameRSI      = "rsi"
	NameMACD     = "macd"
	NameBands    = "bollinger"
	NameATR      = "atr"
	NamePivot    = "pivot"
)

// SnapshotParams selects the windows used by Snapshot.
type SnapshotParams struct {
	ShortMA    int
	LongMA     int
	TrendShort int
	TrendLong  int
	RSIPeriod  int
	BBPeriod   int
	BBStdDev   float64
	ATRPeriod  int
	MACDShort  int
	MACDLong   int
	MACDSignal int
}

// DefaultSnapshotParams returns the usual indicator windows.
func DefaultSnapshotParams() SnapshotParams {
	return SnapshotParams{
		ShortMA:    10,
		LongMA:     48,
		TrendShort: 50,
		TrendLong:  200,
		RSIPeriod:  14,
		BBPeriod:   20,
		BBStdDev:   2,
		ATRPeriod:  14,
		MACDShort:  12,
		MACDLong:   26,
		MACDSignal: 9,
	}
}

// Snapshot computes every indicator at the last bar of the series. An
// indicator whose window is not covered is left NaN and named in Missing;
// other errors are treated the same way so one bad window never hides the rest.
func Snapshot(series *model.PriceSeries, p SnapshotParams) model.IndicatorSnapshot {
	nan := math.NaN()
	snap := model.IndicatorSnapshot{
		Close: series.LastClose(),
		MAShort: nan, MALong: nan, EMAShort: nan, EMALong: nan,
		RSI: nan, MACD: nan, MACDSignal: nan, MACDHist: nan,
		BBUpper: nan, BBMiddle: nan, BBLower: nan, ATR: nan,
	}
	closes := series.Closes()

	if v, err := CalculateSMA(closes, p.ShortMA); err == nil {
		snap.MAShort = v
	} else {
		snap.Missing = append(snap.Missing, NameMAShort)
	}
	if v, err := CalculateSMA(closes, p.LongMA); err == nil {
		snap.MALong = v
	} else {
		snap.Missing = append(snap.Missing, NameMALong)
	}
	if v, err := CalculateEMA(closes, p.TrendShort); err == nil {
		snap.EMAShort = v
	} else {
		snap.Missing = append(snap.Missing, NameEMAShort)
	}
	if v, err := CalculateEMA(closes, p.TrendLong); err == nil {
		snap.EMALong = v
	} else {
		snap.Missing = append(snap.Missing, NameEMALong)
	}
	if v, err := CalculateRSI(closes, p.RSIPeriod); err == nil {
		snap.RSI = v
	} else {
		snap.Missing = append(snap.Missing, NameRSI)
	}
	if m, err := CalculateMACD(closes, p.MACDShort, p.MACDLong, p.MACDSignal); err == nil {
		snap.MACD, snap.MACDSignal, snap.MACDHist = m.Line, m.Signal, m.Histogram
	} else {
		snap.Missing = append(snap.Missing, NameMACD)
	}
	if b, err := CalculateBollinger(closes, p.BBPeriod, p.BBStdDev); err == nil {
		snap.BBUpper, snap.BBMiddle, snap.BBLower = b.Upper, b.Middle, b.Lower
	} else {
		snap.Missing = append(snap.Missing, NameBands)
	}
	if v, err := CalculateATR(series.Bars, p.ATRPeriod); err == nil {
		snap.ATR = v
	} else {
		snap.Missing = append(snap.Missing, NameATR)
	}
	if pv, err := LatestPivotPoints(series.Bars); err == nil {
		snap.Pivot = pv
	} else {
		snap.Missing = append(snap.Missing, NamePivot)
	}
	return snap
}
