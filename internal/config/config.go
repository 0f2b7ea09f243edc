package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"SpikeSentinel/internal/model"
	"SpikeSentinel/internal/strategy"
	"SpikeSentinel/internal/trade"
)

// Config holds all application configuration.
type Config struct {
	Broker struct {
		Mode           string        `yaml:"mode"` // paper | http
		BaseURL        string        `yaml:"base_url"`
		Login          string        `yaml:"login"`
		Password       string        `yaml:"password"`
		Server         string        `yaml:"server"`
		RatePerSecond  float64       `yaml:"rate_per_second"`
		Timeout        time.Duration `yaml:"timeout"`
		PaperBasePrice float64       `yaml:"paper_base_price"`
	} `yaml:"broker"`
	Symbols     []string           `yaml:"symbols"`
	Timeframes  []string           `yaml:"timeframes"`
	Weights     map[string]float64 `yaml:"weights"`
	HistoryBars int                `yaml:"history_bars"`
	Strategy    struct {
		ShortMA          int     `yaml:"short_ma"`
		LongMA           int     `yaml:"long_ma"`
		RSIPeriod        int     `yaml:"rsi_period"`
		RSIOversold      float64 `yaml:"rsi_oversold"`
		RSIOverbought    float64 `yaml:"rsi_overbought"`
		BBPeriod         int     `yaml:"bb_period"`
		BBStdDev         float64 `yaml:"bb_stddev"`
		MATolerance      float64 `yaml:"ma_tolerance"`
		BandTolerance    float64 `yaml:"band_tolerance"`
		PivotTolerance   float64 `yaml:"pivot_tolerance"`
		SpikeWindow      int     `yaml:"spike_window"`
		SpikeThreshold   float64 `yaml:"spike_threshold"`
		TrendShort       int     `yaml:"trend_short"`
		TrendLong        int     `yaml:"trend_long"`
		RequireUnanimous bool    `yaml:"require_unanimous"`
	} `yaml:"strategy"`
	Categories strategy.Thresholds `yaml:"categories"`
	Trade      struct {
		Volume          float64  `yaml:"volume"`
		CloseLongBelow  float64  `yaml:"close_long_below"`
		CloseShortAbove float64  `yaml:"close_short_above"`
		DownSpikeOnly   []string `yaml:"down_spike_only"`
		UpSpikeOnly     []string `yaml:"up_spike_only"`
		RerouteFiltered bool     `yaml:"reroute_filtered"`
		PivotExit       bool     `yaml:"pivot_exit"`
		Cache           string   `yaml:"cache"` // memory | file | redis
		CacheFile       string   `yaml:"cache_file"`
		RedisAddr       string   `yaml:"redis_addr"`
		RedisPassword   string   `yaml:"redis_password"`
		RedisDB         int      `yaml:"redis_db"`
	} `yaml:"trade"`
	Schedule struct {
		Interval     time.Duration `yaml:"interval"`
		CycleTimeout time.Duration `yaml:"cycle_timeout"`
		SummaryCron  string        `yaml:"summary_cron"`
		RunOnStart   bool          `yaml:"run_on_start"`
	} `yaml:"schedule"`
	Reconnect struct {
		Retries int           `yaml:"retries"`
		Delay   time.Duration `yaml:"delay"`
	} `yaml:"reconnect"`
	Database struct {
		Driver      string `yaml:"driver"` // sqlite | postgres | none
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"database"`
	API struct {
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"api"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | console
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies .env files and
// environment variable overrides. Missing files are skipped.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := &Config{}
	cfg.seedThresholds()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"BROKER_MODE":        &c.Broker.Mode,
		"BROKER_BASE_URL":    &c.Broker.BaseURL,
		"BROKER_LOGIN":       &c.Broker.Login,
		"BROKER_PASSWORD":    &c.Broker.Password,
		"BROKER_SERVER":      &c.Broker.Server,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"HTTPS_PROXY":        &c.Proxy,
		"DATABASE_DRIVER":    &c.Database.Driver,
		"SQLITE_PATH":        &c.Database.SQLitePath,
		"POSTGRES_DSN":       &c.Database.PostgresDSN,
		"REDIS_ADDR":         &c.Trade.RedisAddr,
		"REDIS_PASSWORD":     &c.Trade.RedisPassword,
		"POSITION_CACHE":     &c.Trade.Cache,
		"API_ADDR":           &c.API.Addr,
		"LOG_LEVEL":          &c.Log.Level,
		"LOG_FORMAT":         &c.Log.Format,
		"SUMMARY_CRON":       &c.Schedule.SummaryCron,
	}
	for name, dst := range str {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Symbols = splitList(v)
	}
	if v := os.Getenv("CYCLE_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CYCLE_INTERVAL: %w", err)
		}
		c.Schedule.Interval = d
	}
	if v := os.Getenv("TRADE_VOLUME"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("TRADE_VOLUME: %w", err)
		}
		c.Trade.Volume = f
	}
	if v := os.Getenv("RUN_ON_START"); v != "" {
		c.Schedule.RunOnStart = v == "true"
	}
	return nil
}

// seedThresholds sets the thresholds for which zero is a meaningful value
// before the file is parsed, so only keys present in the file replace them.
func (c *Config) seedThresholds() {
	d := strategy.DefaultParams()
	c.Strategy.RSIOversold = d.RSIOversold
	c.Strategy.RSIOverbought = d.RSIOverbought
	c.Categories = strategy.DefaultThresholds()

	td := trade.DefaultConfig()
	c.Trade.CloseLongBelow = td.CloseLongBelow
	c.Trade.CloseShortAbove = td.CloseShortAbove
}

func (c *Config) applyDefaults() {
	if c.Broker.Mode == "" {
		c.Broker.Mode = "paper"
	}
	if c.Broker.RatePerSecond == 0 {
		c.Broker.RatePerSecond = 10
	}
	if c.Broker.Timeout == 0 {
		c.Broker.Timeout = 30 * time.Second
	}
	if c.Broker.PaperBasePrice == 0 {
		c.Broker.PaperBasePrice = 1000
	}
	if len(c.Symbols) == 0 {
		c.Symbols = []string{"Boom 1000 Index", "Crash 1000 Index"}
	}
	if len(c.Weights) == 0 {
		c.Weights = map[string]float64{"M1": 0.2, "M5": 0.3, "M15": 0.5}
	}
	if c.HistoryBars == 0 {
		c.HistoryBars = 300
	}

	d := strategy.DefaultParams()
	s := &c.Strategy
	setInt(&s.ShortMA, d.ShortMA)
	setInt(&s.LongMA, d.LongMA)
	setInt(&s.RSIPeriod, d.RSIPeriod)
	setInt(&s.BBPeriod, d.BBPeriod)
	setFloat(&s.BBStdDev, d.BBStdDev)
	setFloat(&s.MATolerance, d.MATolerance)
	setFloat(&s.BandTolerance, d.BandTolerance)
	setFloat(&s.PivotTolerance, d.PivotTolerance)
	setInt(&s.SpikeWindow, d.SpikeWindow)
	setFloat(&s.SpikeThreshold, d.SpikeThreshold)
	setInt(&s.TrendShort, d.TrendShort)
	setInt(&s.TrendLong, d.TrendLong)

	td := trade.DefaultConfig()
	setFloat(&c.Trade.Volume, td.Volume)
	if c.Trade.DownSpikeOnly == nil {
		c.Trade.DownSpikeOnly = td.DownSpikeOnly
	}
	if c.Trade.UpSpikeOnly == nil {
		c.Trade.UpSpikeOnly = td.UpSpikeOnly
	}
	if c.Trade.Cache == "" {
		c.Trade.Cache = "file"
	}
	if c.Trade.CacheFile == "" {
		c.Trade.CacheFile = "data/positions.json"
	}
	if c.Trade.RedisAddr == "" {
		c.Trade.RedisAddr = "localhost:6379"
	}

	if c.Schedule.Interval == 0 {
		c.Schedule.Interval = 60 * time.Second
	}
	if c.Schedule.CycleTimeout == 0 {
		c.Schedule.CycleTimeout = 45 * time.Second
	}
	if c.Schedule.SummaryCron == "" {
		c.Schedule.SummaryCron = "0 0 22 * * *"
	}
	if c.Reconnect.Retries == 0 {
		c.Reconnect.Retries = 5
	}
	if c.Reconnect.Delay == 0 {
		c.Reconnect.Delay = 5 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/spike_sentinel.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	switch c.Broker.Mode {
	case "paper":
	case "http":
		if c.Broker.BaseURL == "" {
			return fmt.Errorf("broker.base_url is required in http mode")
		}
		if c.Broker.Login == "" || c.Broker.Password == "" {
			return fmt.Errorf("broker.login and broker.password are required in http mode")
		}
	default:
		return fmt.Errorf("broker.mode must be paper or http, got %q", c.Broker.Mode)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols is required")
	}

	weights, err := c.StrategyWeights()
	if err != nil {
		return err
	}
	if len(c.Timeframes) > 0 {
		if len(c.Timeframes) != len(weights) {
			return fmt.Errorf("timeframes %v do not match weights", c.Timeframes)
		}
		for _, s := range c.Timeframes {
			tf, err := model.ParseTimeframe(s)
			if err != nil {
				return fmt.Errorf("timeframes: %w", err)
			}
			if _, ok := weights[tf]; !ok {
				return fmt.Errorf("timeframe %s has no weight", tf)
			}
		}
	}
	if err := c.validateStrategy(); err != nil {
		return err
	}
	if c.HistoryBars < c.StrategyParams().MinBars() {
		return fmt.Errorf("history_bars %d is below the %d bars the strategy needs", c.HistoryBars, c.StrategyParams().MinBars())
	}
	if !c.Categories.Valid() {
		return fmt.Errorf("categories must descend inside [0,1]: %+v", c.Categories)
	}

	if c.Trade.Volume <= 0 {
		return fmt.Errorf("trade.volume must be positive")
	}
	if !unit(c.Trade.CloseLongBelow) || !unit(c.Trade.CloseShortAbove) {
		return fmt.Errorf("trade close thresholds must be within [0,1]")
	}
	switch c.Trade.Cache {
	case "memory", "redis":
	case "file":
		if c.Trade.CacheFile == "" {
			return fmt.Errorf("trade.cache_file is required for the file cache")
		}
	default:
		return fmt.Errorf("trade.cache must be memory, file or redis, got %q", c.Trade.Cache)
	}

	if c.Schedule.Interval < time.Second {
		return fmt.Errorf("schedule.interval must be at least 1s")
	}
	if c.Schedule.CycleTimeout <= 0 || c.Schedule.CycleTimeout > c.Schedule.Interval {
		return fmt.Errorf("schedule.cycle_timeout must be positive and no longer than the interval")
	}
	if c.Schedule.SummaryCron != "-" {
		if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(c.Schedule.SummaryCron); err != nil {
			return fmt.Errorf("schedule.summary_cron: %w", err)
		}
	}
	if c.Reconnect.Retries < 0 || c.Reconnect.Delay < 0 {
		return fmt.Errorf("reconnect settings must not be negative")
	}

	switch c.Database.Driver {
	case "none":
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required")
		}
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("database.postgres_dsn is required")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres or none, got %q", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateStrategy() error {
	s := c.Strategy
	periods := []struct {
		name string
		v    int
	}{
		{"short_ma", s.ShortMA},
		{"long_ma", s.LongMA},
		{"rsi_period", s.RSIPeriod},
		{"bb_period", s.BBPeriod},
		{"spike_window", s.SpikeWindow},
		{"trend_short", s.TrendShort},
		{"trend_long", s.TrendLong},
	}
	for _, p := range periods {
		if p.v <= 0 {
			return fmt.Errorf("strategy.%s must be positive, got %d", p.name, p.v)
		}
	}
	if s.ShortMA >= s.LongMA {
		return fmt.Errorf("strategy.short_ma %d must be below long_ma %d", s.ShortMA, s.LongMA)
	}
	if s.TrendShort >= s.TrendLong {
		return fmt.Errorf("strategy.trend_short %d must be below trend_long %d", s.TrendShort, s.TrendLong)
	}

	tolerances := []struct {
		name string
		v    float64
	}{
		{"ma_tolerance", s.MATolerance},
		{"band_tolerance", s.BandTolerance},
		{"pivot_tolerance", s.PivotTolerance},
	}
	for _, tol := range tolerances {
		if tol.v < 0 || math.IsNaN(tol.v) {
			return fmt.Errorf("strategy.%s must not be negative, got %v", tol.name, tol.v)
		}
	}
	if s.BBStdDev <= 0 {
		return fmt.Errorf("strategy.bb_stddev must be positive, got %v", s.BBStdDev)
	}
	if s.SpikeThreshold <= 0 {
		return fmt.Errorf("strategy.spike_threshold must be positive, got %v", s.SpikeThreshold)
	}
	if s.RSIOversold < 0 || s.RSIOverbought > 100 || s.RSIOversold >= s.RSIOverbought {
		return fmt.Errorf("strategy rsi bounds must satisfy 0 <= rsi_oversold < rsi_overbought <= 100, got %v/%v", s.RSIOversold, s.RSIOverbought)
	}
	return nil
}

// StrategyWeights parses and validates the timeframe weights.
func (c *Config) StrategyWeights() (strategy.Weights, error) {
	w := make(strategy.Weights, len(c.Weights))
	for code, v := range c.Weights {
		tf, err := model.ParseTimeframe(code)
		if err != nil {
			return nil, fmt.Errorf("weights: %w", err)
		}
		if _, dup := w[tf]; dup {
			return nil, fmt.Errorf("weights: duplicate timeframe %s", tf)
		}
		w[tf] = v
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("weights: %w", err)
	}
	return w, nil
}

// StrategyParams returns the evaluator settings.
func (c *Config) StrategyParams() strategy.Params {
	s := c.Strategy
	return strategy.Params{
		ShortMA:        s.ShortMA,
		LongMA:         s.LongMA,
		RSIPeriod:      s.RSIPeriod,
		RSIOversold:    s.RSIOversold,
		RSIOverbought:  s.RSIOverbought,
		BBPeriod:       s.BBPeriod,
		BBStdDev:       s.BBStdDev,
		MATolerance:    s.MATolerance,
		BandTolerance:  s.BandTolerance,
		PivotTolerance: s.PivotTolerance,
		SpikeWindow:    s.SpikeWindow,
		SpikeThreshold: s.SpikeThreshold,
		TrendShort:     s.TrendShort,
		TrendLong:      s.TrendLong,
	}
}

// TradeConfig returns the position lifecycle rules.
func (c *Config) TradeConfig() trade.Config {
	return trade.Config{
		Volume:          c.Trade.Volume,
		CloseLongBelow:  c.Trade.CloseLongBelow,
		CloseShortAbove: c.Trade.CloseShortAbove,
		DownSpikeOnly:   c.Trade.DownSpikeOnly,
		UpSpikeOnly:     c.Trade.UpSpikeOnly,
		RerouteFiltered: c.Trade.RerouteFiltered,
		PivotExit:       c.Trade.PivotExit,
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setFloat(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}

func unit(v float64) bool { return v >= 0 && v <= 1 }
