package trade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SpikeSentinel/internal/broker"
	"SpikeSentinel/internal/model"
)

const (
	boom  = "Boom 1000 Index"
	crash = "Crash 500 Index"
)

func newTestManager(t *testing.T, cfg Config) (*Manager, *broker.PaperGateway, *MemoryCache) {
	t.Helper()
	gw := broker.NewPaperGateway(1000)
	require.NoError(t, gw.Connect(context.Background()))
	gw.SetPrice(boom, 1000)
	gw.SetPrice(crash, 500)
	cache := NewMemoryCache()
	return NewManager(gw, cache, cfg, zerolog.Nop()), gw, cache
}

func signal(symbol string, typ model.SignalType, strength, price float64) *model.CompositeSignal {
	return &model.CompositeSignal{Symbol: symbol, Type: typ, Strength: strength, Price: price, CreatedAt: time.Now()}
}

func actions(outcomes []Outcome) []Action {
	out := make([]Action, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Action
	}
	return out
}

func TestProcess_OpenThenSuppress(t *testing.T) {
	ctx := context.Background()
	m, gw, cache := newTestManager(t, DefaultConfig())

	outcomes, err := m.Process(ctx, signal(boom, model.SignalBuy, 0.85, 1000))
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionOpened}, actions(outcomes))
	assert.Equal(t, 1, gw.Submitted())

	pos, ok, err := cache.Get(ctx, model.PositionKey{Symbol: boom, Side: model.SideBuy})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1000.0, pos.EntryPrice)
	assert.NotEmpty(t, pos.PositionID)

	outcomes, err = m.Process(ctx, signal(boom, model.SignalBuy, 0.82, 1001))
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionSuppressed}, actions(outcomes))
	assert.Equal(t, 1, gw.Submitted(), "duplicate signal must not reach the broker")
}

func TestProcess_HoldDoesNothing(t *testing.T) {
	m, gw, _ := newTestManager(t, DefaultConfig())
	outcomes, err := m.Process(context.Background(), signal(boom, model.SignalHold, 0.5, 1000))
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Equal(t, 0, gw.Submitted())
}

func TestProcess_InstrumentFilter(t *testing.T) {
	ctx := context.Background()
	m, gw, cache := newTestManager(t, DefaultConfig())

	outcomes, err := m.Process(ctx, signal(boom, model.SignalSell, 0.1, 1000))
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionFiltered}, actions(outcomes))

	outcomes, err = m.Process(ctx, signal(crash, model.SignalBuy, 0.9, 500))
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionFiltered}, actions(outcomes))

	assert.Equal(t, 0, gw.Submitted())
	all, _ := cache.List(ctx, "")
	assert.Empty(t, all)
}

func TestProcess_RerouteFiltered(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.RerouteFiltered = true
	cfg.CloseLongBelow = 0
	m, gw, cache := newTestManager(t, cfg)

	outcomes, err := m.Process(ctx, signal(boom, model.SignalSell, 0.1, 1000))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, ActionOpened, outcomes[0].Action)
	assert.Equal(t, model.SideBuy, outcomes[0].Key.Side)

	outcomes, err = m.Process(ctx, signal(boom, model.SignalSell, 0.1, 1000))
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionSuppressed}, actions(outcomes))
	assert.Equal(t, 1, gw.Submitted())
	assert.Equal(t, 0, gw.Closed())

	live, err := gw.OpenPositions(ctx, boom)
	require.NoError(t, err)
	for _, lp := range live {
		assert.NotEqual(t, model.SideSell, lp.Side, "filtered side must never be opened")
	}
	_, ok, _ := cache.Get(ctx, model.PositionKey{Symbol: boom, Side: model.SideSell})
	assert.False(t, ok)
}

func TestProcess_RerouteSkippedWhenOppositeWouldClose(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.RerouteFiltered = true
	m, gw, cache := newTestManager(t, cfg)

	// A SELL on a crash index closes above 0.65, so a BUY at 0.85 has
	// nowhere to go.
	for i := 0; i < 3; i++ {
		outcomes, err := m.Process(ctx, signal(crash, model.SignalBuy, 0.85, 500))
		require.NoError(t, err)
		assert.Equal(t, []Action{ActionFiltered}, actions(outcomes), "cycle %d", i)
	}
	assert.Equal(t, 0, gw.Submitted())
	assert.Equal(t, 0, gw.Closed())
	all, _ := cache.List(ctx, crash)
	assert.Empty(t, all)
}

func TestProcess_RerouteStopsAfterOneHop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RerouteFiltered = true
	m, gw, _ := newTestManager(t, cfg)
	gw.SetPrice("Boom Crash Basket", 10)

	outcomes, err := m.Process(context.Background(), signal("Boom Crash Basket", model.SignalBuy, 0.6, 10))
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionFiltered}, actions(outcomes))
	assert.Equal(t, 0, gw.Submitted())
}

func TestProcess_CloseLongBelowThreshold(t *testing.T) {
	ctx := context.Background()
	m, gw, cache := newTestManager(t, DefaultConfig())
	_, err := m.Process(ctx, signal(boom, model.SignalBuy, 0.9, 1000))
	require.NoError(t, err)

	outcomes, err := m.Process(ctx, signal(boom, model.SignalHold, 0.55, 1000))
	require.NoError(t, err)
	assert.Empty(t, outcomes, "strength above the long threshold keeps the position")

	gw.SetPrice(boom, 1010)
	outcomes, err = m.Process(ctx, signal(boom, model.SignalHold, 0.45, 1010))
	require.NoError(t, err)
	require.Equal(t, []Action{ActionClosed}, actions(outcomes))
	assert.InDelta(t, 2.0, outcomes[0].Profit, 1e-9)
	assert.Equal(t, 1, gw.Closed())

	all, _ := cache.List(ctx, "")
	assert.Empty(t, all)
}

func TestProcess_CloseShortAboveThreshold(t *testing.T) {
	ctx := context.Background()
	m, gw, cache := newTestManager(t, DefaultConfig())
	_, err := m.Process(ctx, signal(crash, model.SignalSell, 0.1, 500))
	require.NoError(t, err)

	outcomes, err := m.Process(ctx, signal(crash, model.SignalHold, 0.6, 500))
	require.NoError(t, err)
	assert.Empty(t, outcomes)

	outcomes, err = m.Process(ctx, signal(crash, model.SignalHold, 0.7, 500))
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionClosed}, actions(outcomes))
	assert.Equal(t, 1, gw.Closed())
	_, ok, _ := cache.Get(ctx, model.PositionKey{Symbol: crash, Side: model.SideSell})
	assert.False(t, ok)
}

func TestProcess_CloseOnOppositeLivePosition(t *testing.T) {
	ctx := context.Background()
	m, gw, _ := newTestManager(t, DefaultConfig())
	_, err := m.Process(ctx, signal(boom, model.SignalBuy, 0.9, 1000))
	require.NoError(t, err)

	// Opened outside the bot.
	_, err = gw.SubmitOrder(ctx, model.OrderRequest{Symbol: boom, Side: model.SideSell, Volume: 1})
	require.NoError(t, err)

	outcomes, err := m.Process(ctx, signal(boom, model.SignalHold, 0.9, 1000))
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, ActionClosed, outcomes[0].Action)
	assert.Equal(t, "opposite position open", outcomes[0].Reason)
}

func TestProcess_CloseThenOpenOpposite(t *testing.T) {
	ctx := context.Background()
	m, _, cache := newTestManager(t, DefaultConfig())
	_, err := m.Process(ctx, signal("Volatility 75 Index", model.SignalBuy, 0.9, 300))
	require.NoError(t, err)

	outcomes, err := m.Process(ctx, signal("Volatility 75 Index", model.SignalSell, 0.1, 300))
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionClosed, ActionOpened}, actions(outcomes))

	all, _ := cache.List(ctx, "Volatility 75 Index")
	require.Len(t, all, 1)
	assert.Equal(t, model.SideSell, all[0].Side)
}

func TestProcess_HedgedSidesBothClose(t *testing.T) {
	ctx := context.Background()
	const vol = "Volatility 75 Index"
	m, gw, cache := newTestManager(t, DefaultConfig())

	outcomes, err := m.Process(ctx, signal(vol, model.SignalSell, 0.1, 300))
	require.NoError(t, err)
	require.Equal(t, []Action{ActionOpened}, actions(outcomes))

	// 0.62 is inside both close thresholds, so the SELL survives and a BUY
	// opens beside it.
	outcomes, err = m.Process(ctx, signal(vol, model.SignalBuy, 0.62, 300))
	require.NoError(t, err)
	require.Equal(t, []Action{ActionOpened}, actions(outcomes))

	outcomes, err = m.Process(ctx, signal(vol, model.SignalBuy, 0.62, 300))
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionClosed, ActionClosed, ActionSuppressed}, actions(outcomes))
	assert.Equal(t, model.SideBuy, outcomes[0].Key.Side)
	assert.Equal(t, model.SideSell, outcomes[1].Key.Side)
	assert.Equal(t, "closed this cycle", outcomes[2].Reason)

	outcomes, err = m.Process(ctx, signal(vol, model.SignalBuy, 0.62, 300))
	require.NoError(t, err)
	require.Equal(t, []Action{ActionOpened}, actions(outcomes))

	for i := 0; i < 3; i++ {
		outcomes, err = m.Process(ctx, signal(vol, model.SignalBuy, 0.62, 300))
		require.NoError(t, err)
		assert.Equal(t, []Action{ActionSuppressed}, actions(outcomes), "cycle %d", i)
	}
	assert.Equal(t, 3, gw.Submitted())
	assert.Equal(t, 2, gw.Closed())

	live, err := gw.OpenPositions(ctx, vol)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, model.SideBuy, live[0].Side)
	all, _ := cache.List(ctx, vol)
	require.Len(t, all, 1)
	assert.Equal(t, model.SideBuy, all[0].Side)
}

func TestProcess_EvictsClosedExternally(t *testing.T) {
	ctx := context.Background()
	m, gw, cache := newTestManager(t, DefaultConfig())
	outcomes, err := m.Process(ctx, signal(boom, model.SignalBuy, 0.9, 1000))
	require.NoError(t, err)
	_, err = gw.ClosePosition(ctx, outcomes[0].Position.PositionID)
	require.NoError(t, err)

	outcomes, err = m.Process(ctx, signal(boom, model.SignalHold, 0.9, 1000))
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionEvicted}, actions(outcomes))
	all, _ := cache.List(ctx, "")
	assert.Empty(t, all)
}

func TestProcess_BrokerFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	m, gw, cache := newTestManager(t, DefaultConfig())
	gw.FailOn("order", &broker.ConnectivityError{Op: "order", Err: errors.New("reset")})

	_, err := m.Process(ctx, signal(boom, model.SignalBuy, 0.9, 1000))
	require.Error(t, err)
	assert.True(t, broker.IsConnectivity(err))
	all, _ := cache.List(ctx, "")
	assert.Empty(t, all)

	gw.FailOn("order", nil)
	_, err = m.Process(ctx, signal(boom, model.SignalBuy, 0.9, 1000))
	require.NoError(t, err)

	gw.FailOn("close", errors.New("close refused"))
	_, err = m.Process(ctx, signal(boom, model.SignalHold, 0.1, 1000))
	require.Error(t, err)
	_, ok, _ := cache.Get(ctx, model.PositionKey{Symbol: boom, Side: model.SideBuy})
	assert.True(t, ok, "failed close keeps the cache entry")
}

func TestProcess_CancelledBeforeOrder(t *testing.T) {
	m, gw, cache := newTestManager(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Process(ctx, signal(boom, model.SignalBuy, 0.9, 1000))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, gw.Submitted())
	all, _ := cache.List(context.Background(), "")
	assert.Empty(t, all)
}

func TestProcess_PriceResolution(t *testing.T) {
	ctx := context.Background()
	m, gw, cache := newTestManager(t, DefaultConfig())

	outcomes, err := m.Process(ctx, signal(boom, model.SignalBuy, 0.9, 0))
	require.NoError(t, err)
	assert.Equal(t, 1000.0, outcomes[0].Position.EntryPrice, "falls back to the broker quote")

	gw.SetPrice("Volatility 10 Index", 0)
	_, err = m.Process(ctx, signal("Volatility 10 Index", model.SignalBuy, 0.9, 0))
	assert.ErrorIs(t, err, ErrPriceUnresolved)
	assert.Equal(t, 1, gw.Submitted())
	_, ok, _ := cache.Get(ctx, model.PositionKey{Symbol: "Volatility 10 Index", Side: model.SideBuy})
	assert.False(t, ok)
}

func TestFiltered(t *testing.T) {
	m, _, _ := newTestManager(t, DefaultConfig())
	tests := []struct {
		symbol string
		side   model.Side
		want   bool
	}{
		{boom, model.SideBuy, false},
		{boom, model.SideSell, true},
		{crash, model.SideBuy, true},
		{crash, model.SideSell, false},
		{"BOOM 500 INDEX", model.SideSell, true},
		{"Volatility 75 Index", model.SideBuy, false},
		{"Volatility 75 Index", model.SideSell, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Filtered(tt.symbol, tt.side), "%s %s", tt.symbol, tt.side)
	}
}

func pivotSignal(typ model.SignalType, strength, price float64) *model.CompositeSignal {
	sig := signal(boom, typ, strength, price)
	sig.Pivot = &model.PivotLevels{Pivot: 1000, R1: 1010, S1: 990}
	return sig
}

func TestProcess_PivotExit(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.PivotExit = true
	m, gw, cache := newTestManager(t, cfg)

	outcomes, err := m.Process(ctx, pivotSignal(model.SignalBuy, 0.85, 1000))
	require.NoError(t, err)
	require.Equal(t, []Action{ActionOpened}, actions(outcomes))

	gw.SetPrice(boom, 1012)
	outcomes, err = m.Process(ctx, pivotSignal(model.SignalHold, 0.7, 1012))
	require.NoError(t, err)
	require.Equal(t, []Action{ActionClosed}, actions(outcomes))
	assert.Contains(t, outcomes[0].Reason, "pivot R1")

	outcomes, err = m.Process(ctx, pivotSignal(model.SignalBuy, 0.85, 1012))
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionFiltered}, actions(outcomes), "no entry while price sits beyond R1")

	gw.SetPrice(boom, 1000)
	outcomes, err = m.Process(ctx, pivotSignal(model.SignalBuy, 0.85, 1000))
	require.NoError(t, err)
	assert.Equal(t, []Action{ActionOpened}, actions(outcomes))

	assert.Equal(t, 2, gw.Submitted())
	assert.Equal(t, 1, gw.Closed())
	all, _ := cache.List(ctx, boom)
	assert.Len(t, all, 1)
}

func TestProcess_PivotExitOffByDefault(t *testing.T) {
	ctx := context.Background()
	m, gw, _ := newTestManager(t, DefaultConfig())

	_, err := m.Process(ctx, pivotSignal(model.SignalBuy, 0.85, 1000))
	require.NoError(t, err)
	outcomes, err := m.Process(ctx, pivotSignal(model.SignalHold, 0.7, 1012))
	require.NoError(t, err)
	assert.Empty(t, outcomes)
	assert.Equal(t, 0, gw.Closed())
}
