package model

// PivotLevels are the classic floor-trader pivot and its support/resistance tiers.
type PivotLevels struct {
	Pivot float64 `json:"pivot"`
	R1    float64 `json:"r1"`
	R2    float64 `json:"r2"`
	R3    float64 `json:"r3"`
	S1    float64 `json:"s1"`
	S2    float64 `json:"s2"`
	S3    float64 `json:"s3"`
}

// IndicatorSnapshot holds all indicators computed at the last bar of a series.
// Values whose window is not covered by the series are NaN and listed in Missing.
type IndicatorSnapshot struct {
	Close      float64
	MAShort    float64
	MALong     float64
	EMAShort   float64 // trend EMA, e.g. 50
	EMALong    float64 // trend EMA, e.g. 200
	RSI        float64
	MACD       float64
	MACDSignal float64
	MACDHist   float64
	BBUpper    float64
	BBMiddle   float64
	BBLower    float64
	ATR        float64
	Pivot      PivotLevels
	Missing    []string
}

// Has reports whether the named indicator was computed.
func (s *IndicatorSnapshot) Has(name string) bool {
	for _, m := range s.Missing {
		if m == name {
			return false
		}
	}
	return true
}
