// Package optimize searches timeframe weights by replaying history: each
// bar of the longest timeframe is judged with only the bars available at
// its close, and every weight combination is scored on what price did next.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"SpikeSentinel/internal/model"
	"SpikeSentinel/internal/strategy"
)

// Config tunes the search and the scoring.
type Config struct {
	// Step is the grid resolution; 1/Step must be a whole number.
	Step float64
	// Threshold opens a buy above it and a sell below 1-Threshold.
	Threshold float64
	// Lookahead is how many base bars ahead direction is judged.
	Lookahead int
	// ProfitLookahead and ProfitTarget define a profitable trade.
	ProfitLookahead int
	ProfitTarget    float64
	// SpikeTarget is the relative move within Lookahead bars that counts
	// as a caught spike.
	SpikeTarget float64
	Workers     int
}

// DefaultConfig returns the standard search settings.
func DefaultConfig() Config {
	return Config{
		Step:            0.1,
		Threshold:       0.65,
		Lookahead:       5,
		ProfitLookahead: 10,
		ProfitTarget:    0.02,
		SpikeTarget:     0.015,
	}
}

// Row is one replayed moment: the base bar index and the strength of
// every timeframe, in Matrix.Timeframes order.
type Row struct {
	Index     int
	Time      time.Time
	Strengths []float64
}

// Matrix holds the replayed strengths and the base closes they are scored on.
type Matrix struct {
	Timeframes []model.Timeframe
	Base       model.Timeframe
	Closes     []float64
	Rows       []Row
}

// Score is the result of one weight combination.
type Score struct {
	Weights        strategy.Weights
	Accuracy       float64
	Signals        int
	ProfitAccuracy float64
	Trades         int
	// SpikeAccuracy is the share of signals followed by a move of at least
	// SpikeTarget in the signalled direction.
	SpikeAccuracy float64
}

// Result is the outcome of a search.
type Result struct {
	Best      Score
	Evaluated int
	Rows      int
}

// BuildMatrix replays series through the evaluator. The base timeframe is
// the longest one; rows start once every timeframe has enough history.
func BuildMatrix(ctx context.Context, ev *strategy.Evaluator, series map[model.Timeframe]*model.PriceSeries, cfg Config) (*Matrix, error) {
	if len(series) == 0 {
		return nil, errors.New("no series to replay")
	}
	tfs := make([]model.Timeframe, 0, len(series))
	for tf, s := range series {
		if s.Len() == 0 {
			return nil, fmt.Errorf("empty series for %s", tf)
		}
		tfs = append(tfs, tf)
	}
	strategy.SortTimeframes(tfs)
	base := tfs[len(tfs)-1]
	baseBars := series[base].Bars

	m := &Matrix{Timeframes: tfs, Base: base, Closes: series[base].Closes()}
	minBars := ev.Params().MinBars()

	type job struct {
		index    int
		prefixes []*model.PriceSeries
	}
	var jobs []job
	for i := range baseBars {
		cutoff := baseBars[i].Time.Add(base.Duration())
		prefixes := make([]*model.PriceSeries, len(tfs))
		ready := true
		for j, tf := range tfs {
			p := prefix(series[tf], cutoff)
			if p.Len() < minBars {
				ready = false
				break
			}
			prefixes[j] = p
		}
		if ready {
			jobs = append(jobs, job{index: i, prefixes: prefixes})
		}
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("not enough history: every timeframe needs %d bars", minBars)
	}

	m.Rows = make([]Row, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g.SetLimit(workers)
	for k, jb := range jobs {
		k, jb := k, jb
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			row := Row{Index: jb.index, Time: baseBars[jb.index].Time, Strengths: make([]float64, len(tfs))}
			for j, p := range jb.prefixes {
				row.Strengths[j] = ev.Evaluate(p).Strength
			}
			m.Rows[k] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

// prefix returns the bars of s that closed at or before cutoff.
func prefix(s *model.PriceSeries, cutoff time.Time) *model.PriceSeries {
	return s.Until(cutoff.Add(-s.Timeframe.Duration()))
}

// Grid enumerates every weighting of tfs in multiples of step summing to 1.
// Earlier timeframes vary slowest.
func Grid(tfs []model.Timeframe, step float64) ([]strategy.Weights, error) {
	if len(tfs) == 0 {
		return nil, strategy.ErrNoWeights
	}
	if step <= 0 || step > 1 {
		return nil, fmt.Errorf("step must be in (0,1], got %v", step)
	}
	units := int(math.Round(1 / step))
	if math.Abs(float64(units)*step-1) > 1e-9 {
		return nil, fmt.Errorf("1/step must be a whole number, got step %v", step)
	}

	var out []strategy.Weights
	parts := make([]int, len(tfs))
	var walk func(pos, left int)
	walk = func(pos, left int) {
		if pos == len(tfs)-1 {
			parts[pos] = left
			w := make(strategy.Weights, len(tfs))
			for i, tf := range tfs {
				w[tf] = float64(parts[i]) / float64(units)
			}
			out = append(out, w)
			return
		}
		for k := 0; k <= left; k++ {
			parts[pos] = k
			walk(pos+1, left-k)
		}
	}
	walk(0, units)
	return out, nil
}

// Score rates one weight combination against the matrix. Weights that do
// not sum to 1 are normalized first.
func (m *Matrix) Score(w strategy.Weights, cfg Config) Score {
	if nw, err := w.Normalize(); err == nil {
		w = nw
	}
	vec := make([]float64, len(m.Timeframes))
	for i, tf := range m.Timeframes {
		vec[i] = w[tf]
	}

	sc := Score{Weights: w}
	correct, profitable, spikes := 0, 0, 0
	for _, row := range m.Rows {
		composite := floats.Dot(vec, row.Strengths)
		dir := 0
		switch {
		case composite > cfg.Threshold:
			dir = 1
		case composite < 1-cfg.Threshold:
			dir = -1
		default:
			continue
		}
		current := m.Closes[row.Index]

		if j := row.Index + cfg.Lookahead; j < len(m.Closes) {
			sc.Signals++
			future := m.Closes[j]
			if (dir > 0 && future > current) || (dir < 0 && future < current) {
				correct++
			}
			change := (future - current) / current
			if (dir > 0 && change > cfg.SpikeTarget) || (dir < 0 && change < -cfg.SpikeTarget) {
				spikes++
			}
		}
		if j := row.Index + cfg.ProfitLookahead; j < len(m.Closes) {
			sc.Trades++
			future := m.Closes[j]
			if (dir > 0 && future > current*(1+cfg.ProfitTarget)) || (dir < 0 && future < current*(1-cfg.ProfitTarget)) {
				profitable++
			}
		}
	}
	if sc.Signals > 0 {
		sc.Accuracy = float64(correct) / float64(sc.Signals)
		sc.SpikeAccuracy = float64(spikes) / float64(sc.Signals)
	}
	if sc.Trades > 0 {
		sc.ProfitAccuracy = float64(profitable) / float64(sc.Trades)
	}
	return sc
}

// Search scores the whole grid and keeps the first combination with the
// highest direction accuracy.
func (m *Matrix) Search(cfg Config) (*Result, error) {
	grid, err := Grid(m.Timeframes, cfg.Step)
	if err != nil {
		return nil, err
	}
	res := &Result{Best: Score{Accuracy: -1}, Evaluated: len(grid), Rows: len(m.Rows)}
	for _, w := range grid {
		if sc := m.Score(w, cfg); sc.Accuracy > res.Best.Accuracy {
			res.Best = sc
		}
	}
	return res, nil
}

// Run builds the matrix and searches it.
func Run(ctx context.Context, ev *strategy.Evaluator, series map[model.Timeframe]*model.PriceSeries, cfg Config) (*Result, error) {
	m, err := BuildMatrix(ctx, ev, series, cfg)
	if err != nil {
		return nil, err
	}
	return m.Search(cfg)
}
