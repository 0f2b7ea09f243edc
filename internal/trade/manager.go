// Package trade runs the position lifecycle for composite signals: at most
// one open position per (symbol, side), opened on BUY/SELL and closed when
// the signal turns against it.
package trade

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"SpikeSentinel/internal/broker"
	"SpikeSentinel/internal/model"
)

// ErrPriceUnresolved means neither the signal nor the broker had a price.
var ErrPriceUnresolved = errors.New("current price unresolved")

// Action is what the manager did for one key.
type Action string

const (
	ActionOpened     Action = "opened"
	ActionSuppressed Action = "suppressed"
	ActionFiltered   Action = "filtered"
	ActionRejected   Action = "rejected"
	ActionClosed     Action = "closed"
	ActionEvicted    Action = "evicted"
)

// Outcome describes one lifecycle transition, or the lack of one.
type Outcome struct {
	Action   Action
	Key      model.PositionKey
	Position *model.Position
	Result   *model.OrderResult
	Reason   string
	// Profit is the broker-reported PnL of the positions that were closed.
	Profit float64
	At     time.Time
}

// Config tunes the lifecycle rules.
type Config struct {
	Volume          float64
	CloseLongBelow  float64
	CloseShortAbove float64
	// DownSpikeOnly name patterns never get a BUY; UpSpikeOnly never a SELL.
	DownSpikeOnly   []string
	UpSpikeOnly     []string
	RerouteFiltered bool
	// PivotExit closes any position once price reaches the pivot R1 or
	// S1 of the signal, and opens nothing while it stays there.
	PivotExit       bool
}

// DefaultConfig returns the standard lifecycle rules.
func DefaultConfig() Config {
	return Config{
		Volume:          0.2,
		CloseLongBelow:  0.5,
		CloseShortAbove: 0.65,
		DownSpikeOnly:   []string{"crash"},
		UpSpikeOnly:     []string{"boom"},
	}
}

// Manager owns the position cache. Each Process call holds the mutex for
// the whole transition, so the broker confirmation and the cache write
// happen as one step.
type Manager struct {
	mu     sync.Mutex
	gw     broker.Gateway
	cache  PositionCache
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewManager creates a Manager over gw and cache.
func NewManager(gw broker.Gateway, cache PositionCache, cfg Config, logger zerolog.Logger) *Manager {
	return &Manager{
		gw:     gw,
		cache:  cache,
		cfg:    cfg,
		logger: logger.With().Str("component", "trade").Logger(),
		now:    time.Now,
	}
}

// Positions returns all cached positions.
func (m *Manager) Positions(ctx context.Context) ([]model.Position, error) {
	return m.cache.List(ctx, "")
}

// Process runs the close path over cached keys of the signal's symbol, then
// the open path for a BUY or SELL signal.
func (m *Manager) Process(ctx context.Context, sig *model.CompositeSignal) ([]Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	outcomes, err := m.closePath(ctx, sig)
	if err != nil {
		return outcomes, err
	}
	side, ok := model.SideFor(sig.Type)
	if !ok {
		return outcomes, nil
	}
	closed := make(map[model.PositionKey]bool)
	for _, o := range outcomes {
		if o.Action == ActionClosed {
			closed[o.Key] = true
		}
	}
	o, err := m.open(ctx, sig, side, m.cfg.RerouteFiltered, closed)
	if err != nil {
		return outcomes, err
	}
	return append(outcomes, o), nil
}

func (m *Manager) closePath(ctx context.Context, sig *model.CompositeSignal) ([]Outcome, error) {
	cached, err := m.cache.List(ctx, sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("list cached positions: %w", err)
	}
	if len(cached) == 0 {
		return nil, nil
	}
	// live is the broker state at the start of the pass and is not updated
	// as sides close, so both sides of a hedge see each other.
	live, err := m.gw.OpenPositions(ctx, sig.Symbol)
	if err != nil {
		return nil, fmt.Errorf("list live positions %s: %w", sig.Symbol, err)
	}

	var outcomes []Outcome
	for i := range cached {
		pos := cached[i]
		key := pos.Key()
		mine := liveForSide(live, pos.Side)

		if len(mine) == 0 {
			if err := m.cache.Delete(ctx, key); err != nil {
				return outcomes, fmt.Errorf("evict %s: %w", key, err)
			}
			m.logger.Info().Str("symbol", key.Symbol).Str("side", string(key.Side)).Msg("cached position no longer live, evicted")
			outcomes = append(outcomes, Outcome{Action: ActionEvicted, Key: key, Position: &pos, Reason: "not live at broker", At: m.now()})
			continue
		}

		reason := m.closeReason(pos.Side, sig, live)
		if reason == "" {
			continue
		}

		var last *model.OrderResult
		profit := 0.0
		for _, lp := range mine {
			if err := ctx.Err(); err != nil {
				return outcomes, err
			}
			res, err := m.gw.ClosePosition(ctx, lp.ID)
			if err != nil {
				return outcomes, fmt.Errorf("close %s position %s: %w", key, lp.ID, err)
			}
			if !res.OK() {
				return outcomes, fmt.Errorf("close %s position %s: broker status %s: %s", key, lp.ID, res.Status, res.Message)
			}
			profit += lp.Profit
			last = res
		}
		if err := m.cache.Delete(ctx, key); err != nil {
			return outcomes, fmt.Errorf("remove %s: %w", key, err)
		}
		m.logger.Info().Str("symbol", key.Symbol).Str("side", string(key.Side)).
			Str("reason", reason).Float64("strength", sig.Strength).Float64("profit", profit).Msg("position closed")
		outcomes = append(outcomes, Outcome{Action: ActionClosed, Key: key, Position: &pos, Result: last, Reason: reason, Profit: profit, At: m.now()})
	}
	return outcomes, nil
}

// closeReason returns why a cached position on side should close, or "".
func (m *Manager) closeReason(side model.Side, sig *model.CompositeSignal, live []model.BrokerPosition) string {
	if len(liveForSide(live, side.Opposite())) > 0 {
		return "opposite position open"
	}
	if why := m.pivotBreach(sig); why != "" {
		return why
	}
	strength := sig.Strength
	switch {
	case side == model.SideBuy && strength < m.cfg.CloseLongBelow:
		return fmt.Sprintf("strength %.2f below %.2f", strength, m.cfg.CloseLongBelow)
	case side == model.SideSell && strength > m.cfg.CloseShortAbove:
		return fmt.Sprintf("strength %.2f above %.2f", strength, m.cfg.CloseShortAbove)
	}
	return ""
}

// open runs the open path for side. Keys in closed were closed earlier in
// the same Process call and are not reopened until the next one.
func (m *Manager) open(ctx context.Context, sig *model.CompositeSignal, side model.Side, reroute bool, closed map[model.PositionKey]bool) (Outcome, error) {
	key := model.PositionKey{Symbol: sig.Symbol, Side: side}
	if closed[key] {
		m.logger.Debug().Str("symbol", key.Symbol).Str("side", string(side)).Msg("closed this cycle, not reopened")
		return Outcome{Action: ActionSuppressed, Key: key, Reason: "closed this cycle", At: m.now()}, nil
	}
	if _, ok, err := m.cache.Get(ctx, key); err != nil {
		return Outcome{}, fmt.Errorf("lookup %s: %w", key, err)
	} else if ok {
		m.logger.Debug().Str("symbol", key.Symbol).Str("side", string(side)).Msg("position already open, suppressed")
		return Outcome{Action: ActionSuppressed, Key: key, At: m.now()}, nil
	}

	if why := m.pivotBreach(sig); why != "" {
		m.logger.Info().Str("symbol", key.Symbol).Str("side", string(side)).Str("reason", why).Msg("price outside pivot range, no order")
		return Outcome{Action: ActionFiltered, Key: key, Reason: why, At: m.now()}, nil
	}

	if m.Filtered(sig.Symbol, side) {
		if reroute {
			// A rerouted position the close thresholds reject at this
			// strength would be closed on the next cycle and reopened.
			if why := m.closeReason(side.Opposite(), sig, nil); why != "" {
				m.logger.Info().Str("symbol", key.Symbol).Str("side", string(side)).Str("reason", why).Msg("instrument filter, opposite side would close at once, no order")
				return Outcome{Action: ActionFiltered, Key: key, Reason: "instrument filter, reroute would close: " + why, At: m.now()}, nil
			}
			m.logger.Info().Str("symbol", key.Symbol).Str("side", string(side)).Msg("instrument filter, rerouting to opposite side")
			return m.open(ctx, sig, side.Opposite(), false, closed)
		}
		m.logger.Info().Str("symbol", key.Symbol).Str("side", string(side)).Msg("instrument filter, no order")
		return Outcome{Action: ActionFiltered, Key: key, Reason: "instrument filter", At: m.now()}, nil
	}

	price, err := m.resolvePrice(ctx, sig)
	if err != nil {
		return Outcome{}, err
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	res, err := m.gw.SubmitOrder(ctx, model.OrderRequest{Symbol: sig.Symbol, Side: side, Volume: m.cfg.Volume, Price: price})
	if err != nil {
		return Outcome{}, fmt.Errorf("submit %s: %w", key, err)
	}
	if !res.OK() {
		m.logger.Warn().Str("symbol", key.Symbol).Str("side", string(side)).Str("status", res.Status).Str("message", res.Message).Msg("order not filled")
		return Outcome{Action: ActionRejected, Key: key, Result: res, Reason: res.Message, At: m.now()}, nil
	}

	entry := price
	if res.Price > 0 {
		entry = res.Price
	}
	pos := &model.Position{
		Symbol:     sig.Symbol,
		Side:       side,
		OrderID:    res.OrderID,
		PositionID: res.PositionID,
		EntryPrice: entry,
		Volume:     m.cfg.Volume,
		OpenedAt:   m.now(),
	}
	if err := m.cache.Put(ctx, pos); err != nil {
		return Outcome{}, fmt.Errorf("cache %s after fill %s: %w", key, res.OrderID, err)
	}
	m.logger.Info().Str("symbol", key.Symbol).Str("side", string(side)).Float64("price", entry).
		Float64("strength", sig.Strength).Str("order_id", res.OrderID).Msg("position opened")
	return Outcome{Action: ActionOpened, Key: key, Position: pos, Result: res, At: m.now()}, nil
}

// pivotBreach reports price at or beyond the signal's pivot R1 or S1 when
// PivotExit is on. An unquoted price never breaches.
func (m *Manager) pivotBreach(sig *model.CompositeSignal) string {
	if !m.cfg.PivotExit || sig.Pivot == nil || sig.Price <= 0 {
		return ""
	}
	switch {
	case sig.Price >= sig.Pivot.R1:
		return fmt.Sprintf("price %.2f at pivot R1 %.2f", sig.Price, sig.Pivot.R1)
	case sig.Price <= sig.Pivot.S1:
		return fmt.Sprintf("price %.2f at pivot S1 %.2f", sig.Price, sig.Pivot.S1)
	}
	return ""
}

// Filtered reports whether the instrument filter forbids opening side on symbol.
func (m *Manager) Filtered(symbol string, side model.Side) bool {
	patterns := m.cfg.UpSpikeOnly
	if side == model.SideBuy {
		patterns = m.cfg.DownSpikeOnly
	}
	name := strings.ToLower(symbol)
	for _, p := range patterns {
		if p != "" && strings.Contains(name, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func (m *Manager) resolvePrice(ctx context.Context, sig *model.CompositeSignal) (float64, error) {
	if sig.Price > 0 {
		return sig.Price, nil
	}
	price, err := m.gw.CurrentPrice(ctx, sig.Symbol)
	switch {
	case errors.Is(err, broker.ErrNoPrice):
		return 0, fmt.Errorf("%w for %s", ErrPriceUnresolved, sig.Symbol)
	case err != nil:
		return 0, fmt.Errorf("quote %s: %w", sig.Symbol, err)
	case price <= 0:
		return 0, fmt.Errorf("%w for %s", ErrPriceUnresolved, sig.Symbol)
	}
	return price, nil
}

func liveForSide(live []model.BrokerPosition, side model.Side) []model.BrokerPosition {
	var out []model.BrokerPosition
	for _, lp := range live {
		if lp.Side == side {
			out = append(out, lp)
		}
	}
	return out
}
