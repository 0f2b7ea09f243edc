// Command optimize replays recent history of one symbol and prints the
// timeframe weights with the best direction accuracy.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"SpikeSentinel/internal/broker"
	"SpikeSentinel/internal/config"
	"SpikeSentinel/internal/logging"
	"SpikeSentinel/internal/model"
	"SpikeSentinel/internal/optimize"
	"SpikeSentinel/internal/strategy"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "config file")
	symbol := flag.String("symbol", "Boom 1000 Index", "symbol to replay")
	window := flag.Duration("window", 60*time.Hour, "history window fetched for every timeframe")
	step := flag.Float64("step", 0.1, "weight grid step")
	threshold := flag.Float64("threshold", 0.65, "composite strength that counts as a signal")
	lookahead := flag.Int("lookahead", 5, "bars ahead used to judge direction")
	profitLookahead := flag.Int("profit-lookahead", 10, "bars ahead used to judge profit")
	profitTarget := flag.Float64("profit-target", 0.02, "relative move that counts as profitable")
	spikeTarget := flag.Float64("spike-target", 0.015, "relative move within lookahead that counts as a caught spike")
	flag.Parse()

	cfg, err := config.Load(*cfgPath, ".env")
	if err != nil {
		boot := logging.New("info", "console")
		boot.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log.Level, "console")
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("config validation")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, err := broker.New(cfg.Broker.Mode, broker.HTTPConfig{
		BaseURL:       cfg.Broker.BaseURL,
		Login:         cfg.Broker.Login,
		Password:      cfg.Broker.Password,
		Server:        cfg.Broker.Server,
		ProxyURL:      cfg.Proxy,
		RatePerSecond: cfg.Broker.RatePerSecond,
		Timeout:       cfg.Broker.Timeout,
	}, cfg.Broker.PaperBasePrice)
	if err != nil {
		logger.Fatal().Err(err).Msg("init broker")
	}
	defer gw.Close()
	if err := broker.ConnectWithRetry(ctx, gw, cfg.Reconnect.Retries, cfg.Reconnect.Delay, logger); err != nil {
		logger.Fatal().Err(err).Msg("broker connect")
	}

	weights, err := cfg.StrategyWeights()
	if err != nil {
		logger.Fatal().Err(err).Msg("weights")
	}

	end := time.Now()
	start := end.Add(-*window)
	series := make(map[model.Timeframe]*model.PriceSeries, len(weights))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, tf := range weights.Timeframes() {
		tf := tf
		g.Go(func() error {
			s, err := gw.FetchBars(gctx, *symbol, tf, start, end)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", tf, err)
			}
			mu.Lock()
			series[tf] = s
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Str("symbol", *symbol).Msg("fetch history")
	}

	ocfg := optimize.Config{
		Step:            *step,
		Threshold:       *threshold,
		Lookahead:       *lookahead,
		ProfitLookahead: *profitLookahead,
		ProfitTarget:    *profitTarget,
		SpikeTarget:     *spikeTarget,
	}
	ev := strategy.NewEvaluator(cfg.StrategyParams())
	m, err := optimize.BuildMatrix(ctx, ev, series, ocfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("replay history")
	}
	res, err := m.Search(ocfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("search weights")
	}
	current := m.Score(weights, ocfg)

	logger.Info().Str("symbol", *symbol).Int("rows", res.Rows).Int("combinations", res.Evaluated).Msg("search finished")
	fmt.Printf("Symbol:            %s (%d replayed %s bars)\n", *symbol, res.Rows, m.Base)
	fmt.Printf("Optimized weights: %s\n", formatWeights(res.Best.Weights))
	fmt.Printf("Signal accuracy:   %.3f (%d signals)\n", res.Best.Accuracy, res.Best.Signals)
	fmt.Printf("Profit accuracy:   %.3f (%d trades)\n", res.Best.ProfitAccuracy, res.Best.Trades)
	fmt.Printf("Spike accuracy:    %.3f\n", res.Best.SpikeAccuracy)
	fmt.Printf("Configured:        %s accuracy %.3f profit %.3f spike %.3f\n", formatWeights(weights), current.Accuracy, current.ProfitAccuracy, current.SpikeAccuracy)
}

func formatWeights(w strategy.Weights) string {
	out := ""
	for i, tf := range w.Timeframes() {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s:%.1f", tf, w[tf])
	}
	return out
}
