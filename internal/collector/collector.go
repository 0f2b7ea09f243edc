// Package collector gathers the multi-timeframe price history and quote
// for one symbol from the broker.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"SpikeSentinel/internal/broker"
	"SpikeSentinel/internal/model"
)

// Market is everything collected for one symbol in one cycle.
type Market struct {
	Symbol string
	// Price is the broker quote; zero when the broker had none.
	Price     float64
	Series    map[model.Timeframe]*model.PriceSeries
	Collected time.Time
}

// Collector orchestrates history fetching per symbol.
type Collector struct {
	gw          broker.Gateway
	timeframes  []model.Timeframe
	historyBars int
	logger      zerolog.Logger
	now         func() time.Time
}

// NewCollector creates a Collector that fetches historyBars bars for each
// timeframe.
func NewCollector(gw broker.Gateway, timeframes []model.Timeframe, historyBars int, logger zerolog.Logger) *Collector {
	if historyBars <= 0 {
		historyBars = 300
	}
	return &Collector{
		gw:          gw,
		timeframes:  timeframes,
		historyBars: historyBars,
		logger:      logger.With().Str("component", "collector").Logger(),
		now:         time.Now,
	}
}

// Collect fetches every timeframe concurrently and then the current quote.
// Any failed timeframe fails the whole collection.
func (c *Collector) Collect(ctx context.Context, symbol string) (*Market, error) {
	end := c.now()
	m := &Market{
		Symbol:    symbol,
		Series:    make(map[model.Timeframe]*model.PriceSeries, len(c.timeframes)),
		Collected: end,
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, tf := range c.timeframes {
		tf := tf
		g.Go(func() error {
			start := end.Add(-time.Duration(c.historyBars) * tf.Duration())
			series, err := c.gw.FetchBars(gctx, symbol, tf, start, end)
			if err != nil {
				return fmt.Errorf("fetch %s %s: %w", symbol, tf, err)
			}
			mu.Lock()
			m.Series[tf] = series
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	price, err := c.gw.CurrentPrice(ctx, symbol)
	switch {
	case errors.Is(err, broker.ErrNoPrice):
		c.logger.Warn().Str("symbol", symbol).Msg("no current quote")
	case err != nil:
		return nil, fmt.Errorf("fetch current price: %w", err)
	default:
		m.Price = price
	}

	ev := c.logger.Debug().Str("symbol", symbol).Float64("price", m.Price)
	for tf, s := range m.Series {
		ev = ev.Int(tf.String(), s.Len())
	}
	ev.Msg("market collected")
	return m, nil
}
