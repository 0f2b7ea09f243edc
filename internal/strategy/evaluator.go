package strategy

import (
	"errors"
	"fmt"

	"SpikeSentinel/internal/calculator"
	"SpikeSentinel/internal/detector"
	"SpikeSentinel/internal/model"
)

// neutralStrength is the strength of a timeframe with no opinion.
const neutralStrength = 0.5

// Conditions are the two disjoint condition sets of the discrete judgment.
type Conditions struct {
	ShortMASupport    bool
	LongMASupport     bool
	BandSupport       bool
	ShortMAResistance bool
	LongMAResistance  bool
	BandResistance    bool
}

// Buy reports whether any buy condition holds.
func (c Conditions) Buy() bool { return c.ShortMASupport || c.LongMASupport || c.BandSupport }

// Sell reports whether any sell condition holds.
func (c Conditions) Sell() bool {
	return c.ShortMAResistance || c.LongMAResistance || c.BandResistance
}

// Decide turns the condition sets into a signal. Conflicting sets give HOLD.
func (c Conditions) Decide() model.SignalType {
	buy, sell := c.Buy(), c.Sell()
	switch {
	case buy && !sell:
		return model.SignalBuy
	case sell && !buy:
		return model.SignalSell
	default:
		return model.SignalHold
	}
}

// Analysis is everything the evaluator derived from one series.
type Analysis struct {
	Price       float64
	Snapshot    model.IndicatorSnapshot
	ShortMA     detector.Level
	LongMA      detector.Level
	Bands       detector.Level
	NearShortMA bool
	NearLongMA  bool
	NearBand    detector.Band
	SpikeNow    bool
	Trend       Trend
	NearPivotS1 bool
	NearPivotR1 bool
	Conditions  Conditions
	Adjustments []Adjustment
	Strength    float64
}

// Evaluator judges a single timeframe.
type Evaluator struct {
	params Params
}

// NewEvaluator creates an Evaluator with the given parameters.
func NewEvaluator(p Params) *Evaluator {
	return &Evaluator{params: p}
}

// Params returns the evaluator settings.
func (e *Evaluator) Params() Params { return e.params }

// Snapshot computes the indicator values of series with the evaluator's
// periods. Indicators without enough history are NaN.
func (e *Evaluator) Snapshot(series *model.PriceSeries) model.IndicatorSnapshot {
	return calculator.Snapshot(series, e.params.snapshotParams())
}

// Evaluate produces the timeframe signal. A series too short for the
// classifiers yields HOLD with neutral strength instead of an error.
func (e *Evaluator) Evaluate(series *model.PriceSeries) model.TimeframeSignal {
	sig := model.TimeframeSignal{Timeframe: series.Timeframe}
	a, err := e.Analyze(series)
	if err != nil {
		sig.Type = model.SignalHold
		sig.Strength = neutralStrength
		sig.Insufficient = errors.Is(err, calculator.ErrInsufficientData)
		return sig
	}
	sig.Type = a.Conditions.Decide()
	sig.Strength = a.Strength
	return sig
}

// Analyze runs the classifiers, proximity tests and scoring on a series.
func (e *Evaluator) Analyze(series *model.PriceSeries) (*Analysis, error) {
	p := e.params
	if series.Len() < p.MinBars() {
		return nil, &calculator.InsufficientDataError{Indicator: "evaluator", Need: p.MinBars(), Have: series.Len()}
	}

	a := &Analysis{
		Price:    series.LastClose(),
		Snapshot: calculator.Snapshot(series, p.snapshotParams()),
	}

	var err error
	if a.ShortMA, err = detector.ClassifyMA(series, p.ShortMA); err != nil {
		return nil, fmt.Errorf("classify MA(%d): %w", p.ShortMA, err)
	}
	if a.LongMA, err = detector.ClassifyMA(series, p.LongMA); err != nil {
		return nil, fmt.Errorf("classify MA(%d): %w", p.LongMA, err)
	}
	if a.Bands, err = detector.ClassifyBollinger(series, p.BBPeriod, p.BBStdDev); err != nil {
		return nil, fmt.Errorf("classify bollinger: %w", err)
	}

	snap := a.Snapshot
	a.NearShortMA = detector.IsNear(a.Price, snap.MAShort, p.MATolerance)
	a.NearLongMA = detector.IsNear(a.Price, snap.MALong, p.MATolerance)
	a.NearBand = detector.NearBand(a.Price, calculator.Bands{Upper: snap.BBUpper, Middle: snap.BBMiddle, Lower: snap.BBLower}, p.BandTolerance)
	a.NearPivotS1 = detector.IsNear(a.Price, snap.Pivot.S1, p.PivotTolerance)
	a.NearPivotR1 = detector.IsNear(a.Price, snap.Pivot.R1, p.PivotTolerance)

	spikes := detector.DetectSpikes(series, p.SpikeWindow, p.SpikeThreshold)
	a.SpikeNow = detector.LatestSpikeIsCurrent(spikes, series.Len())
	a.Trend = DetectTrend(series.Closes(), p.TrendShort, p.TrendLong)

	// Test each band directly: NearBand reports only one band when both are in range.
	nearLower := detector.IsNear(a.Price, snap.BBLower, p.BandTolerance)
	nearUpper := detector.IsNear(a.Price, snap.BBUpper, p.BandTolerance)
	a.Conditions = Conditions{
		ShortMASupport:    a.ShortMA == detector.Support && a.NearShortMA,
		LongMASupport:     a.LongMA == detector.Support && a.NearLongMA,
		BandSupport:       a.Bands == detector.Support && nearLower,
		ShortMAResistance: a.ShortMA == detector.Resistance && a.NearShortMA,
		LongMAResistance:  a.LongMA == detector.Resistance && a.NearLongMA,
		BandResistance:    a.Bands == detector.Resistance && nearUpper,
	}

	a.Strength, a.Adjustments = scoreStrength(a, p)
	return a, nil
}
