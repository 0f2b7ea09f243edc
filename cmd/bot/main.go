package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"SpikeSentinel/internal/api"
	"SpikeSentinel/internal/broker"
	"SpikeSentinel/internal/collector"
	"SpikeSentinel/internal/config"
	"SpikeSentinel/internal/logging"
	"SpikeSentinel/internal/notifier"
	"SpikeSentinel/internal/recorder"
	"SpikeSentinel/internal/scheduler"
	"SpikeSentinel/internal/strategy"
	"SpikeSentinel/internal/trade"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath, ".env")
	if err != nil {
		boot := logging.New("info", "json")
		boot.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("config validation")
	}
	logger.Info().Str("config", cfgPath).Msg("SpikeSentinel starting")

	// Broker
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
	logger.Info().Str("broker", gw.Name()).Msg("broker selected")

	// Strategy
	weights, err := cfg.StrategyWeights()
	if err != nil {
		logger.Fatal().Err(err).Msg("weights")
	}
	agg, err := strategy.NewAggregator(strategy.NewEvaluator(cfg.StrategyParams()), strategy.AggregatorConfig{
		Weights:          weights,
		Thresholds:       cfg.Categories,
		RequireUnanimous: cfg.Strategy.RequireUnanimous,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init aggregator")
	}
	col := collector.NewCollector(gw, agg.Timeframes(), cfg.HistoryBars, logger)

	// Position cache and trade manager
	cache, closeCache := openCache(cfg, logger)
	defer closeCache()
	mgr := trade.NewManager(gw, cache, cfg.TradeConfig(), logger)

	// Recorder
	rec := openStore(cfg, logger)
	defer rec.Close()

	// Telegram notifier
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, logger)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewScheduler(ctx, gw, col, agg, mgr, rec, tn, scheduler.Options{
		Symbols:          cfg.Symbols,
		Interval:         cfg.Schedule.Interval,
		CycleTimeout:     cfg.Schedule.CycleTimeout,
		SummaryCron:      cfg.Schedule.SummaryCron,
		ReconnectRetries: cfg.Reconnect.Retries,
		ReconnectDelay:   cfg.Reconnect.Delay,
	}, logger)
	if err := sched.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("broker connect")
	}
	if err := sched.Register(); err != nil {
		logger.Fatal().Err(err).Msg("register cron tasks")
	}
	sched.Start()

	// HTTP API
	var srv *api.Server
	if cfg.API.Addr != "" {
		srv = api.NewServer(api.Config{Addr: cfg.API.Addr, CORSOrigins: cfg.API.CORSOrigins, Production: cfg.Log.Level != "debug"},
			rec, mgr, func() any { return sched.Status(ctx) }, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error().Err(err).Msg("HTTP server failed")
			}
		}()
	}

	// Telegram polling
	if tn.Enabled() {
		go tn.StartPolling(ctx, sched.HandleCommand)
		logger.Info().Msg("telegram polling started")
	} else {
		logger.Warn().Msg("telegram not configured, notifications disabled")
	}

	if cfg.Schedule.RunOnStart {
		logger.Info().Msg("run_on_start enabled, executing cycle now")
		go sched.RunNow()
	}

	logger.Info().Msg("SpikeSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal or a fatal scheduler error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received, stopping")
	case err := <-sched.Errors():
		logger.Error().Err(err).Msg("fatal scheduler error, stopping")
		exitCode = 1
	}

	cancel()
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP server shutdown")
		}
		done()
	}
	sched.Stop()
	logger.Info().Msg("SpikeSentinel stopped")
	return exitCode
}

func openCache(cfg *config.Config, logger zerolog.Logger) (trade.PositionCache, func()) {
	switch cfg.Trade.Cache {
	case "file":
		ensureDir(cfg.Trade.CacheFile, logger)
		fc, err := trade.NewFileCache(cfg.Trade.CacheFile)
		if err != nil {
			logger.Fatal().Err(err).Str("file", cfg.Trade.CacheFile).Msg("load position cache")
		}
		return fc, func() {}
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Trade.RedisAddr,
			Password: cfg.Trade.RedisPassword,
			DB:       cfg.Trade.RedisDB,
		})
		return trade.NewRedisCache(client, logger), func() { client.Close() }
	default:
		return trade.NewMemoryCache(), func() {}
	}
}

func openStore(cfg *config.Config, logger zerolog.Logger) recorder.Store {
	switch cfg.Database.Driver {
	case "sqlite":
		ensureDir(cfg.Database.SQLitePath, logger)
		s, err := recorder.NewSQLiteStore(cfg.Database.SQLitePath, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
			return recorder.NewNoopStore()
		}
		return s
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s, err := recorder.NewPostgresStore(ctx, cfg.Database.PostgresDSN, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("init postgres recorder failed, using noop")
			return recorder.NewNoopStore()
		}
		return s
	default:
		return recorder.NewNoopStore()
	}
}

func ensureDir(path string, logger zerolog.Logger) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("create data directory")
	}
}
