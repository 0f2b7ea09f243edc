// Package scheduler drives the evaluation cycle: every interval each symbol
// is collected, aggregated and handed to the trade manager, and the
// results are recorded and reported.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"SpikeSentinel/internal/broker"
	"SpikeSentinel/internal/collector"
	"SpikeSentinel/internal/metrics"
	"SpikeSentinel/internal/model"
	"SpikeSentinel/internal/notifier"
	"SpikeSentinel/internal/recorder"
	"SpikeSentinel/internal/strategy"
	"SpikeSentinel/internal/trade"
)

// Notifier delivers chat messages.
type Notifier interface {
	Enabled() bool
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Options tunes the cycle.
type Options struct {
	Symbols      []string
	Interval     time.Duration
	CycleTimeout time.Duration
	// SummaryCron schedules the daily report; "" or "-" disables it.
	SummaryCron      string
	ReconnectRetries int
	ReconnectDelay   time.Duration
}

// Scheduler manages the cron tasks.
type Scheduler struct {
	Cron       *cron.Cron
	Gateway    broker.Gateway
	Collector  *collector.Collector
	Aggregator *strategy.Aggregator
	Manager    *trade.Manager
	Recorder   recorder.Store
	Notifier   Notifier
	Ctx        context.Context

	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	running   atomic.Bool
	connected atomic.Bool
	reconnect sync.Mutex
	errs      chan error

	mu       sync.Mutex
	latest   map[string]*model.CompositeSignal
	cycles   int64
	failures int64
	last     time.Time
	started  time.Time
	summary  notifier.Summary
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, gw broker.Gateway, col *collector.Collector, agg *strategy.Aggregator,
	mgr *trade.Manager, rec recorder.Store, n Notifier, opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.CycleTimeout <= 0 || opts.CycleTimeout > opts.Interval {
		opts.CycleTimeout = opts.Interval
	}
	s := &Scheduler{
		Cron:       cron.New(cron.WithSeconds()),
		Gateway:    gw,
		Collector:  col,
		Aggregator: agg,
		Manager:    mgr,
		Recorder:   rec,
		Notifier:   n,
		Ctx:        ctx,
		opts:       opts,
		logger:     logger.With().Str("component", "scheduler").Logger(),
		now:        time.Now,
		errs:       make(chan error, 1),
		latest:     make(map[string]*model.CompositeSignal),
	}
	s.started = s.now()
	s.resetSummary()
	return s
}

// Register adds the evaluation cycle and the daily summary to cron.
func (s *Scheduler) Register() error {
	every := fmt.Sprintf("@every %s", s.opts.Interval)
	if _, err := s.Cron.AddFunc(every, s.cycleTask); err != nil {
		return fmt.Errorf("register cycle task: %w", err)
	}
	if s.opts.SummaryCron != "" && s.opts.SummaryCron != "-" {
		if _, err := s.Cron.AddFunc(s.opts.SummaryCron, s.summaryTask); err != nil {
			return fmt.Errorf("register summary task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info().Dur("interval", s.opts.Interval).Strs("symbols", s.opts.Symbols).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running cycle.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// Errors reports fatal failures, such as an exhausted reconnect.
func (s *Scheduler) Errors() <-chan error { return s.errs }

// Connect connects the broker with the reconnect policy.
func (s *Scheduler) Connect(ctx context.Context) error {
	if err := broker.ConnectWithRetry(ctx, s.Gateway, s.opts.ReconnectRetries, s.opts.ReconnectDelay, s.logger); err != nil {
		s.connected.Store(false)
		return fmt.Errorf("connect %s: %w", s.Gateway.Name(), err)
	}
	s.connected.Store(true)
	return nil
}

// RunNow executes one cycle immediately (for RUN_ON_START and /cycle).
func (s *Scheduler) RunNow() {
	s.cycleTask()
}

func (s *Scheduler) cycleTask() {
	if err := s.RunCycle(s.Ctx); err != nil {
		s.logger.Error().Err(err).Msg("cycle failed")
	}
}

// RunCycle processes every symbol concurrently, each under its own deadline.
// A cycle that starts while another is running is skipped. Broker
// connectivity failures trigger a reconnect; exhausting it is fatal.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("previous cycle still running, skipped")
		return nil
	}
	defer s.running.Store(false)

	cycleID := uuid.NewString()
	log := s.logger.With().Str("cycle", cycleID).Logger()
	log.Debug().Msg("cycle started")

	var (
		wg           sync.WaitGroup
		failMu       sync.Mutex
		failures     []error
		disconnected bool
	)
	for _, symbol := range s.opts.Symbols {
		symbol := symbol
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.processSymbol(ctx, log, symbol)
			if err != nil {
				failMu.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", symbol, err))
				if broker.IsConnectivity(err) {
					disconnected = true
				}
				failMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if positions, err := s.Manager.Positions(ctx); err == nil {
		metrics.OpenPositions.Set(float64(len(positions)))
	}

	s.mu.Lock()
	s.cycles++
	s.summary.Cycles++
	s.last = s.now()
	if len(failures) > 0 {
		s.failures++
	}
	s.mu.Unlock()

	if disconnected && ctx.Err() == nil {
		s.reconnectBroker(ctx)
	}
	log.Debug().Int("failed", len(failures)).Msg("cycle finished")
	return errors.Join(failures...)
}

func (s *Scheduler) processSymbol(parent context.Context, log zerolog.Logger, symbol string) (err error) {
	ctx, cancel := context.WithTimeout(parent, s.opts.CycleTimeout)
	defer cancel()
	start := s.now()
	log = log.With().Str("symbol", symbol).Logger()

	result := "ok"
	defer func() {
		if err != nil && result == "ok" {
			result = "error"
		}
		metrics.CyclesTotal.WithLabelValues(symbol, result).Inc()
		metrics.CycleDuration.WithLabelValues(symbol).Observe(time.Since(start).Seconds())
	}()

	market, err := s.Collector.Collect(ctx, symbol)
	if err != nil {
		log.Error().Err(err).Msg("collect market data")
		return err
	}
	s.recordMarket(ctx, log, market)

	sig, err := s.Aggregator.Aggregate(ctx, symbol, market.Price, market.Series)
	if err != nil {
		log.Error().Err(err).Msg("aggregate signal")
		return err
	}
	s.recordSignal(ctx, log, sig)

	outcomes, err := s.Manager.Process(ctx, sig)
	for _, o := range outcomes {
		s.handleOutcome(ctx, log, o)
	}
	if errors.Is(err, trade.ErrPriceUnresolved) {
		log.Warn().Err(err).Msg("no price, symbol skipped")
		result = "skipped"
		return nil
	}
	if err != nil {
		log.Error().Err(err).Msg("process signal")
		return err
	}
	return nil
}

func (s *Scheduler) recordMarket(ctx context.Context, log zerolog.Logger, m *collector.Market) {
	ev := s.Aggregator.Evaluator()
	for _, tf := range s.Aggregator.Timeframes() {
		series := m.Series[tf]
		if series.Len() == 0 {
			continue
		}
		if err := s.Recorder.Upsert(ctx, recorder.KindMarket, recorder.MarketKey(m.Symbol, tf), recorder.MarketFields(series)); err != nil {
			log.Error().Err(err).Str("timeframe", string(tf)).Msg("record market")
		}
		snap := ev.Snapshot(series)
		if err := s.Recorder.Upsert(ctx, recorder.KindIndicator, recorder.IndicatorKey(m.Symbol, tf), recorder.IndicatorFields(m.Symbol, tf, snap)); err != nil {
			log.Error().Err(err).Str("timeframe", string(tf)).Msg("record indicators")
		}
	}
}

func (s *Scheduler) recordSignal(ctx context.Context, log zerolog.Logger, sig *model.CompositeSignal) {
	metrics.SignalsTotal.WithLabelValues(sig.Symbol, string(sig.Type)).Inc()
	metrics.CompositeStrength.WithLabelValues(sig.Symbol).Set(sig.Strength)

	s.mu.Lock()
	s.latest[sig.Symbol] = sig
	s.summary.Signals[sig.Type]++
	s.mu.Unlock()

	if err := s.Recorder.Upsert(ctx, recorder.KindSignal, recorder.SignalKey(sig.Symbol, sig.CreatedAt), recorder.SignalFields(sig)); err != nil {
		log.Error().Err(err).Msg("record signal")
	}
}

func (s *Scheduler) handleOutcome(ctx context.Context, log zerolog.Logger, o trade.Outcome) {
	metrics.OrdersTotal.WithLabelValues(o.Key.Symbol, string(o.Key.Side), string(o.Action)).Inc()

	switch o.Action {
	case trade.ActionOpened:
		s.mu.Lock()
		s.summary.Opened++
		s.mu.Unlock()
		if err := s.Recorder.Upsert(ctx, recorder.KindTrade, recorder.TradeKey(o.Position), recorder.TradeOpenFields(o.Position)); err != nil {
			log.Error().Err(err).Msg("record trade open")
		}
	case trade.ActionClosed:
		s.mu.Lock()
		s.summary.Closed++
		s.summary.Profit += o.Profit
		s.mu.Unlock()
		exit := 0.0
		if o.Result != nil {
			exit = o.Result.Price
		}
		if err := s.Recorder.Upsert(ctx, recorder.KindTrade, recorder.TradeKey(o.Position), recorder.TradeCloseFields(exit, o.Profit, o.Reason, o.At)); err != nil {
			log.Error().Err(err).Msg("record trade close")
		}
	default:
		return
	}
	s.trySend(ctx, notifier.FormatOutcome(o))
}

func (s *Scheduler) reconnectBroker(ctx context.Context) {
	if !s.reconnect.TryLock() {
		return
	}
	defer s.reconnect.Unlock()

	s.connected.Store(false)
	metrics.ReconnectsTotal.Inc()
	s.logger.Warn().Str("broker", s.Gateway.Name()).Msg("broker connectivity lost, reconnecting")
	if err := s.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.trySend(ctx, fmt.Sprintf("❌ <b>Broker reconnect failed</b>\n%v", err))
		select {
		case s.errs <- err:
		default:
		}
	}
}

func (s *Scheduler) summaryTask() {
	s.mu.Lock()
	sum := s.summary
	s.resetSummary()
	s.mu.Unlock()
	sum.Date = s.now()
	s.trySend(s.Ctx, notifier.FormatSummary(sum))
}

// resetSummary must be called with mu held or before the scheduler starts.
func (s *Scheduler) resetSummary() {
	s.summary = notifier.Summary{Signals: make(map[model.SignalType]int)}
}

// Status returns the bot state.
func (s *Scheduler) Status(ctx context.Context) notifier.Status {
	st := notifier.Status{
		Symbols:    s.opts.Symbols,
		Timeframes: s.Aggregator.Timeframes(),
		Connected:  s.connected.Load(),
		StartedAt:  s.started,
	}
	if positions, err := s.Manager.Positions(ctx); err == nil {
		st.Positions = len(positions)
	}
	s.mu.Lock()
	st.Cycles, st.Failures, st.LastCycle = s.cycles, s.failures, s.last
	s.mu.Unlock()
	return st
}

// LatestSignals returns the most recent signal of each symbol, by symbol.
func (s *Scheduler) LatestSignals() []*model.CompositeSignal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.CompositeSignal, 0, len(s.latest))
	for _, sig := range s.latest {
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	switch command {
	case "/status":
		return notifier.FormatStatus(s.Status(ctx))
	case "/positions":
		positions, err := s.Manager.Positions(ctx)
		if err != nil {
			return fmt.Sprintf("❌ failed to load positions: %v", err)
		}
		return notifier.FormatPositions(positions)
	case "/signals":
		return notifier.FormatSignals(s.LatestSignals())
	default:
		return notifier.HelpText
	}
}

func (s *Scheduler) trySend(ctx context.Context, text string) {
	if text == "" || s.Notifier == nil || !s.Notifier.Enabled() {
		return
	}
	if err := s.Notifier.SendWithRetry(ctx, text, 3); err != nil {
		s.logger.Error().Err(err).Msg("send notification")
	}
}
