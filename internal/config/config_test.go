package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"SpikeSentinel/internal/model"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.Broker.Mode != "paper" || cfg.HistoryBars != 300 {
		t.Errorf("broker.mode=%q history_bars=%d", cfg.Broker.Mode, cfg.HistoryBars)
	}
	if cfg.Schedule.Interval != 60*time.Second || cfg.Schedule.CycleTimeout != 45*time.Second {
		t.Errorf("schedule = %+v", cfg.Schedule)
	}
	if cfg.Reconnect.Retries != 5 || cfg.Reconnect.Delay != 5*time.Second {
		t.Errorf("reconnect = %+v", cfg.Reconnect)
	}
	tc := cfg.TradeConfig()
	if tc.CloseLongBelow != 0.5 || tc.CloseShortAbove != 0.65 || tc.RerouteFiltered {
		t.Errorf("trade config = %+v", tc)
	}
	w, err := cfg.StrategyWeights()
	if err != nil {
		t.Fatal(err)
	}
	if w[model.M1] != 0.2 || w[model.M5] != 0.3 || w[model.M15] != 0.5 {
		t.Errorf("weights = %v", w)
	}
	if cfg.StrategyParams().LongMA != 48 {
		t.Errorf("long_ma default = %d", cfg.StrategyParams().LongMA)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
broker:
  mode: http
  base_url: http://bridge:8080
  login: "1001"
  password: secret
  timeout: 10s
symbols: ["Boom 500 Index"]
timeframes: [m1, h1]
weights: {M1: 0.4, H1: 0.6}
strategy:
  short_ma: 8
  require_unanimous: true
trade:
  volume: 0.5
  reroute_filtered: true
  pivot_exit: true
  cache: memory
schedule:
  interval: 2m
  cycle_timeout: 90s
  summary_cron: "@daily"
database:
  driver: none
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Broker.Timeout != 10*time.Second || cfg.Schedule.Interval != 2*time.Minute {
		t.Errorf("durations not parsed: %v %v", cfg.Broker.Timeout, cfg.Schedule.Interval)
	}
	if cfg.Strategy.ShortMA != 8 || cfg.Strategy.LongMA != 48 || !cfg.Strategy.RequireUnanimous {
		t.Errorf("strategy = %+v", cfg.Strategy)
	}
	if !cfg.TradeConfig().RerouteFiltered || !cfg.TradeConfig().PivotExit || cfg.TradeConfig().Volume != 0.5 {
		t.Errorf("trade = %+v", cfg.TradeConfig())
	}
}

func TestLoadExplicitZeroThresholds(t *testing.T) {
	path := writeFile(t, "config.yaml", `
strategy:
  rsi_oversold: 0
categories:
  weak_sell: 0
trade:
  close_long_below: 0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Strategy.RSIOversold != 0 || cfg.Strategy.RSIOverbought != 70 {
		t.Errorf("rsi bounds = %v/%v", cfg.Strategy.RSIOversold, cfg.Strategy.RSIOverbought)
	}
	if cfg.Categories.WeakSell != 0 || cfg.Categories.StrongBuy != 0.8 {
		t.Errorf("categories = %+v", cfg.Categories)
	}
	tc := cfg.TradeConfig()
	if tc.CloseLongBelow != 0 || tc.CloseShortAbove != 0.65 {
		t.Errorf("close thresholds = %v/%v", tc.CloseLongBelow, tc.CloseShortAbove)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", "broker:\n  password: from-yaml\n")
	t.Setenv("BROKER_PASSWORD", "from-env")
	t.Setenv("SYMBOLS", "Boom 300 Index, Crash 300 Index,")
	t.Setenv("CYCLE_INTERVAL", "30s")
	t.Setenv("TRADE_VOLUME", "1.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Broker.Password != "from-env" {
		t.Errorf("password = %q", cfg.Broker.Password)
	}
	if strings.Join(cfg.Symbols, "|") != "Boom 300 Index|Crash 300 Index" {
		t.Errorf("symbols = %q", cfg.Symbols)
	}
	if cfg.Schedule.Interval != 30*time.Second || cfg.Trade.Volume != 1.5 {
		t.Errorf("interval=%v volume=%v", cfg.Schedule.Interval, cfg.Trade.Volume)
	}

	t.Setenv("CYCLE_INTERVAL", "soon")
	if _, err := Load(path); err == nil {
		t.Error("bad CYCLE_INTERVAL should fail")
	}
}

func TestDotEnv(t *testing.T) {
	const name = "TELEGRAM_CHAT_ID"
	if _, set := os.LookupEnv(name); set {
		t.Skipf("%s already set", name)
	}
	t.Cleanup(func() { os.Unsetenv(name) })

	env := writeFile(t, ".env", name+"=12345\n")
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"), env, filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.ChatID != "12345" {
		t.Errorf("chat_id = %q", cfg.Telegram.ChatID)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"weights sum", func(c *Config) { c.Weights = map[string]float64{"M1": 0.5, "M5": 0.3} }, "sum to 1"},
		{"unknown timeframe", func(c *Config) { c.Weights = map[string]float64{"M2": 1} }, "unknown timeframe"},
		{"timeframe without weight", func(c *Config) { c.Timeframes = []string{"M1", "M5", "H1"} }, "no weight"},
		{"timeframe count", func(c *Config) { c.Timeframes = []string{"M1"} }, "do not match"},
		{"broker mode", func(c *Config) { c.Broker.Mode = "mt5" }, "broker.mode"},
		{"http base url", func(c *Config) { c.Broker.Mode = "http" }, "base_url"},
		{"no symbols", func(c *Config) { c.Symbols = nil }, "symbols"},
		{"short history", func(c *Config) { c.HistoryBars = 10 }, "history_bars"},
		{"negative period", func(c *Config) { c.Strategy.ShortMA = -5 }, "short_ma must be positive"},
		{"zero rsi period", func(c *Config) { c.Strategy.RSIPeriod = 0 }, "rsi_period"},
		{"ma order", func(c *Config) { c.Strategy.ShortMA = 60 }, "below long_ma"},
		{"trend order", func(c *Config) { c.Strategy.TrendShort = 200 }, "below trend_long"},
		{"negative tolerance", func(c *Config) { c.Strategy.BandTolerance = -0.01 }, "band_tolerance"},
		{"bb stddev", func(c *Config) { c.Strategy.BBStdDev = -2 }, "bb_stddev"},
		{"spike threshold", func(c *Config) { c.Strategy.SpikeThreshold = -1 }, "spike_threshold"},
		{"rsi bounds", func(c *Config) { c.Strategy.RSIOversold = 80 }, "rsi bounds"},
		{"categories", func(c *Config) { c.Categories.WeakBuy = 0.9 }, "categories"},
		{"volume", func(c *Config) { c.Trade.Volume = -1 }, "volume"},
		{"close threshold", func(c *Config) { c.Trade.CloseShortAbove = 1.2 }, "close thresholds"},
		{"cache", func(c *Config) { c.Trade.Cache = "memcached" }, "trade.cache"},
		{"cycle timeout", func(c *Config) { c.Schedule.CycleTimeout = 2 * time.Minute }, "cycle_timeout"},
		{"summary cron", func(c *Config) { c.Schedule.SummaryCron = "every day" }, "summary_cron"},
		{"database", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"postgres dsn", func(c *Config) { c.Database.Driver = "postgres" }, "postgres_dsn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
