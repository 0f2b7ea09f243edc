package recorder

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SpikeSentinel/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sentinel.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestSQLiteStore_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	series := model.NewSeriesFromCloses("Boom 1000 Index", model.M1, time.Unix(0, 0), []float64{1, 2, 3})

	key := MarketKey("Boom 1000 Index", model.M1)
	require.NoError(t, s.Upsert(ctx, KindMarket, key, MarketFields(series)))
	require.NoError(t, s.Upsert(ctx, KindMarket, key, MarketFields(series)))

	recs, err := s.List(ctx, KindMarket, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, key, recs[0].Key)
	assert.Equal(t, 3.0, recs[0].Fields["close"])
	assert.Equal(t, "M1", recs[0].Fields["time_frame"])
	assert.True(t, recs[0].UpdatedAt.After(recs[0].CreatedAt))
}

func TestSQLiteStore_TradeCloseMerges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	pos := &model.Position{Symbol: "Boom 1000 Index", Side: model.SideBuy, OrderID: "o1", PositionID: "p1", EntryPrice: 1000, Volume: 0.2, OpenedAt: time.Unix(100, 0)}

	require.NoError(t, s.Upsert(ctx, KindTrade, TradeKey(pos), TradeOpenFields(pos)))
	require.NoError(t, s.Upsert(ctx, KindTrade, TradeKey(pos), TradeCloseFields(1010, 2, "strength 0.40 below 0.50", time.Unix(200, 0))))

	recs, err := s.List(ctx, KindTrade, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	f := recs[0].Fields
	assert.Equal(t, "p1", recs[0].Key)
	assert.Equal(t, 1000.0, f["entry_price"])
	assert.Equal(t, 1010.0, f["exit_price"])
	assert.Equal(t, false, f["is_active"])
	assert.Equal(t, "BUY", f["side"])
}

func TestSQLiteStore_ListOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i, sym := range []string{"A", "B", "C"} {
		sig := &model.CompositeSignal{Symbol: sym, Type: model.SignalBuy, Strength: 0.7, Category: model.CategoryWeakBuy, CreatedAt: time.Unix(int64(i), 0)}
		require.NoError(t, s.Upsert(ctx, KindSignal, SignalKey(sym, sig.CreatedAt), SignalFields(sig)))
	}

	recs, err := s.List(ctx, KindSignal, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "C", recs[0].Fields["symbol"])
	assert.Equal(t, "B", recs[1].Fields["symbol"])

	none, err := s.List(ctx, KindIndicator, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_IndicatorNaNIsNull(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	snap := model.IndicatorSnapshot{Close: 100, RSI: 55, EMALong: math.NaN(), Missing: []string{"ema_long"}}

	require.NoError(t, s.Upsert(ctx, KindIndicator, IndicatorKey("X", model.M5), IndicatorFields("X", model.M5, snap)))
	recs, err := s.List(ctx, KindIndicator, 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Fields["ema_long"])
	assert.Equal(t, 55.0, recs[0].Fields["rsi"])
}

func TestSQLiteStore_UnknownKind(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Upsert(context.Background(), Kind("position"), "x", Fields{}))
	_, err := s.List(context.Background(), Kind("position"), 1)
	assert.Error(t, err)
}

func TestNoopStore(t *testing.T) {
	n := NewNoopStore()
	assert.NoError(t, n.Upsert(context.Background(), KindTrade, "k", Fields{"a": 1}))
	recs, err := n.List(context.Background(), KindTrade, 10)
	assert.NoError(t, err)
	assert.Empty(t, recs)
	assert.Error(t, n.Upsert(context.Background(), Kind("bogus"), "k", nil))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "Boom 1000 Index|M5", MarketKey("Boom 1000 Index", model.M5))
	assert.Equal(t, "Boom 1000 Index|60000000005", SignalKey("Boom 1000 Index", time.Unix(60, 5)))
	assert.NotEqual(t, SignalKey("Boom 1000 Index", time.Unix(60, 0)), SignalKey("Boom 1000 Index", time.Unix(60, 1)))
	assert.Equal(t, "o1", TradeKey(&model.Position{OrderID: "o1"}))
	assert.Equal(t, "p1", TradeKey(&model.Position{OrderID: "o1", PositionID: "p1"}))
}
