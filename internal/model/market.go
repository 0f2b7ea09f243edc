package model

import (
	"fmt"
	"strings"
	"time"
)

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Timeframe is a bar sampling interval such as M1 or H4.
type Timeframe string

const (
	M1  Timeframe = "M1"
	M5  Timeframe = "M5"
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)

var timeframeDurations = map[Timeframe]time.Duration{
	M1:  time.Minute,
	M5:  5 * time.Minute,
	M15: 15 * time.Minute,
	M30: 30 * time.Minute,
	H1:  time.Hour,
	H4:  4 * time.Hour,
	D1:  24 * time.Hour,
}

// ParseTimeframe accepts codes like "M5" or "h1".
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the length of one bar, or 0 for an unknown timeframe.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

func (tf Timeframe) String() string { return string(tf) }

// PriceSeries holds the chronological bars of one (symbol, timeframe) pair.
// All indicators are anchored at the last bar.
type PriceSeries struct {
	Symbol    string
	Timeframe Timeframe
	Bars      []OHLCV
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Last returns the most recent bar. It panics on an empty series.
func (s *PriceSeries) Last() OHLCV {
	return s.Bars[len(s.Bars)-1]
}

// LastClose returns the close of the most recent bar, or 0 for an empty series.
func (s *PriceSeries) LastClose() float64 {
	if s.Len() == 0 {
		return 0
	}
	return s.Last().Close
}

func (s *PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

func (s *PriceSeries) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

func (s *PriceSeries) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Until returns a view of the series holding only bars at or before t.
// The returned series shares the underlying bar slice.
func (s *PriceSeries) Until(t time.Time) *PriceSeries {
	n := 0
	for n < len(s.Bars) && !s.Bars[n].Time.After(t) {
		n++
	}
	return &PriceSeries{Symbol: s.Symbol, Timeframe: s.Timeframe, Bars: s.Bars[:n]}
}

// NewSeriesFromCloses builds a series whose bars all have open=high=low=close.
// Used by tests and the paper broker.
func NewSeriesFromCloses(symbol string, tf Timeframe, start time.Time, closes []float64) *PriceSeries {
	step := tf.Duration()
	if step == 0 {
		step = time.Minute
	}
	bars := make([]OHLCV, len(closes))
	for i, c := range closes {
		bars[i] = OHLCV{
			Time:  start.Add(time.Duration(i) * step),
			Open:  c,
			High:  c,
			Low:   c,
			Close: c,
		}
	}
	return &PriceSeries{Symbol: symbol, Timeframe: tf, Bars: bars}
}
