package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"SpikeSentinel/internal/calculator"
	"SpikeSentinel/internal/model"
)

// ErrMissingTimeframe is returned when a weighted timeframe has no series.
var ErrMissingTimeframe = errors.New("missing series for timeframe")

// AggregatorConfig wires an Aggregator.
type AggregatorConfig struct {
	Weights    Weights
	Thresholds Thresholds
	// RequireUnanimous holds the composite unless every timeframe votes
	// in the direction of the weighted category.
	RequireUnanimous bool
}

// Aggregator combines per-timeframe judgments into one composite signal.
type Aggregator struct {
	evaluator  *Evaluator
	cfg        AggregatorConfig
	timeframes []model.Timeframe
	logger     zerolog.Logger
	now        func() time.Time
}

// NewAggregator validates the weights and thresholds and returns an Aggregator.
func NewAggregator(ev *Evaluator, cfg AggregatorConfig, logger zerolog.Logger) (*Aggregator, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Thresholds.Valid() {
		return nil, fmt.Errorf("invalid category thresholds: %+v", cfg.Thresholds)
	}
	return &Aggregator{
		evaluator:  ev,
		cfg:        cfg,
		timeframes: cfg.Weights.Timeframes(),
		logger:     logger.With().Str("component", "aggregator").Logger(),
		now:        time.Now,
	}, nil
}

// Evaluator returns the per-timeframe evaluator.
func (a *Aggregator) Evaluator() *Evaluator { return a.evaluator }

// Timeframes returns the weighted timeframes, shortest first.
func (a *Aggregator) Timeframes() []model.Timeframe { return a.timeframes }

// Evaluate judges every weighted timeframe concurrently and returns the
// results in Timeframes order once all of them have finished.
func (a *Aggregator) Evaluate(ctx context.Context, series map[model.Timeframe]*model.PriceSeries) ([]model.TimeframeSignal, error) {
	for _, tf := range a.timeframes {
		if series[tf] == nil {
			return nil, fmt.Errorf("%w %s", ErrMissingTimeframe, tf)
		}
	}

	results := make([]model.TimeframeSignal, len(a.timeframes))
	g, gctx := errgroup.WithContext(ctx)
	for i, tf := range a.timeframes {
		i, s := i, series[tf]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.evaluator.Evaluate(s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Aggregate evaluates all timeframes and reduces them into a composite signal.
// price is carried as is; zero means the quote was unavailable.
func (a *Aggregator) Aggregate(ctx context.Context, symbol string, price float64, series map[model.Timeframe]*model.PriceSeries) (*model.CompositeSignal, error) {
	signals, err := a.Evaluate(ctx, series)
	if err != nil {
		return nil, err
	}
	strength, err := Combine(signals, a.cfg.Weights)
	if err != nil {
		return nil, err
	}
	category := a.cfg.Thresholds.Categorize(strength)
	vote := UnanimousVote(signals)

	sigType := category.SignalType()
	if a.cfg.RequireUnanimous && !voteAgrees(vote, sigType) {
		sigType = model.SignalHold
	}

	composite := &model.CompositeSignal{
		Symbol:     symbol,
		Price:      price,
		Strength:   strength,
		Category:   category,
		Type:       sigType,
		Vote:       vote,
		Timeframes: signals,
		CreatedAt:  a.now(),
	}
	base := series[a.timeframes[len(a.timeframes)-1]]
	if pivot, err := calculator.LatestPivotPoints(base.Bars); err == nil {
		composite.Pivot = &pivot
	}

	ev := a.logger.Debug().Str("symbol", symbol)
	for _, s := range signals {
		ev = ev.Str(string(s.Timeframe), fmt.Sprintf("%s/%.2f", s.Type, s.Strength))
	}
	ev.Float64("strength", strength).Str("category", string(category)).Int("vote", vote).Msg("composite signal")

	return composite, nil
}

// Combine returns the weighted sum of timeframe strengths.
func Combine(signals []model.TimeframeSignal, weights Weights) (float64, error) {
	total := 0.0
	for _, s := range signals {
		w, ok := weights[s.Timeframe]
		if !ok {
			return 0, fmt.Errorf("no weight for timeframe %s", s.Timeframe)
		}
		total += w * s.Strength
	}
	if math.IsNaN(total) {
		return 0, errors.New("composite strength is NaN")
	}
	return clamp01(total), nil
}

// UnanimousVote returns +1 when every timeframe says BUY, -1 when every
// timeframe says SELL, and 0 on any disagreement or an empty input.
func UnanimousVote(signals []model.TimeframeSignal) int {
	if len(signals) == 0 {
		return 0
	}
	first := signals[0].Type
	for _, s := range signals[1:] {
		if s.Type != first {
			return 0
		}
	}
	switch first {
	case model.SignalBuy:
		return 1
	case model.SignalSell:
		return -1
	default:
		return 0
	}
}

// VoteType converts a unanimous vote into a signal type.
func VoteType(vote int) model.SignalType {
	switch {
	case vote > 0:
		return model.SignalBuy
	case vote < 0:
		return model.SignalSell
	default:
		return model.SignalHold
	}
}

func voteAgrees(vote int, t model.SignalType) bool {
	return t == model.SignalHold || VoteType(vote) == t
}
