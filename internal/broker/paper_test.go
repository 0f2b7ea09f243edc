package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SpikeSentinel/internal/model"
)

func TestPaperGateway_NotConnected(t *testing.T) {
	p := NewPaperGateway(1000)
	_, err := p.FetchBars(context.Background(), "Crash 500 Index", model.M1, time.Unix(0, 0), time.Unix(3600, 0))
	assert.True(t, IsConnectivity(err))
}

func TestPaperGateway_SyntheticBars(t *testing.T) {
	p := NewPaperGateway(1000)
	require.NoError(t, p.Connect(context.Background()))
	end := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	s, err := p.FetchBars(context.Background(), "Crash 500 Index", model.M1, end.Add(-300*time.Minute), end)
	require.NoError(t, err)
	assert.Equal(t, 300, s.Len())
	for i := 1; i < s.Len(); i++ {
		assert.True(t, s.Bars[i].Time.After(s.Bars[i-1].Time))
	}

	again, err := p.FetchBars(context.Background(), "Crash 500 Index", model.M1, end.Add(-300*time.Minute), end)
	require.NoError(t, err)
	assert.Equal(t, s.Closes(), again.Closes(), "synthetic bars are deterministic")
}

func TestPaperGateway_PresetSeriesWindow(t *testing.T) {
	p := NewPaperGateway(1000)
	require.NoError(t, p.Connect(context.Background()))
	p.SetSeries(model.NewSeriesFromCloses("Boom 1000 Index", model.M1, time.Unix(0, 0), []float64{1, 2, 3, 4, 5}))

	s, err := p.FetchBars(context.Background(), "Boom 1000 Index", model.M1, time.Unix(60, 0), time.Unix(180, 0))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 4}, s.Closes())

	price, err := p.CurrentPrice(context.Background(), "Boom 1000 Index")
	require.NoError(t, err)
	assert.Equal(t, 5.0, price)
}

func TestPaperGateway_OrderLifecycle(t *testing.T) {
	ctx := context.Background()
	p := NewPaperGateway(1000)
	require.NoError(t, p.Connect(ctx))
	p.SetPrice("Boom 1000 Index", 100)

	res, err := p.SubmitOrder(ctx, model.OrderRequest{Symbol: "Boom 1000 Index", Side: model.SideBuy, Volume: 2})
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.Equal(t, 100.0, res.Price)
	assert.NotEmpty(t, res.OrderID)

	positions, err := p.OpenPositions(ctx, "Boom 1000 Index")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, res.PositionID, positions[0].ID)

	others, err := p.OpenPositions(ctx, "Crash 500 Index")
	require.NoError(t, err)
	assert.Empty(t, others)

	p.SetPrice("Boom 1000 Index", 103.5)
	closed, err := p.ClosePosition(ctx, res.PositionID)
	require.NoError(t, err)
	assert.True(t, closed.OK())
	assert.Equal(t, "7", p.RealizedPnL().String())

	positions, err = p.OpenPositions(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, positions)

	rejected, err := p.ClosePosition(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, rejected.OK())
	assert.Equal(t, 1, p.Submitted())
	assert.Equal(t, 2, p.Closed())
}

func TestPaperGateway_ShortProfit(t *testing.T) {
	ctx := context.Background()
	p := NewPaperGateway(1000)
	require.NoError(t, p.Connect(ctx))
	p.SetPrice("Crash 500 Index", 50)
	res, err := p.SubmitOrder(ctx, model.OrderRequest{Symbol: "Crash 500 Index", Side: model.SideSell, Volume: 1})
	require.NoError(t, err)
	p.SetPrice("Crash 500 Index", 45)
	_, err = p.ClosePosition(ctx, res.PositionID)
	require.NoError(t, err)
	assert.Equal(t, "5", p.RealizedPnL().String())
}

func TestPaperGateway_NoPrice(t *testing.T) {
	p := NewPaperGateway(1000)
	require.NoError(t, p.Connect(context.Background()))
	p.SetPrice("Boom 1000 Index", 0)
	_, err := p.CurrentPrice(context.Background(), "Boom 1000 Index")
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestPaperGateway_FailOn(t *testing.T) {
	p := NewPaperGateway(1000)
	require.NoError(t, p.Connect(context.Background()))
	boom := errors.New("boom")
	p.FailOn("order", boom)
	_, err := p.SubmitOrder(context.Background(), model.OrderRequest{Symbol: "X", Side: model.SideBuy, Volume: 1})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, p.Submitted())

	p.FailOn("order", nil)
	_, err = p.SubmitOrder(context.Background(), model.OrderRequest{Symbol: "X", Side: model.SideBuy, Volume: 1})
	assert.NoError(t, err)
}

type flakyGateway struct {
	*PaperGateway
	failures int
	attempts int
	err      error
}

func (f *flakyGateway) Connect(ctx context.Context) error {
	f.attempts++
	if f.attempts <= f.failures {
		return f.err
	}
	return f.PaperGateway.Connect(ctx)
}

func TestConnectWithRetry(t *testing.T) {
	gw := &flakyGateway{PaperGateway: NewPaperGateway(1000), failures: 2, err: &ConnectivityError{Op: "connect", Err: errors.New("refused")}}
	require.NoError(t, ConnectWithRetry(context.Background(), gw, 3, time.Millisecond, zerolog.Nop()))
	assert.Equal(t, 3, gw.attempts)
}

func TestConnectWithRetry_Exhausted(t *testing.T) {
	gw := &flakyGateway{PaperGateway: NewPaperGateway(1000), failures: 10, err: &ConnectivityError{Op: "connect", Err: errors.New("refused")}}
	err := ConnectWithRetry(context.Background(), gw, 2, time.Millisecond, zerolog.Nop())
	require.Error(t, err)
	assert.Equal(t, 3, gw.attempts, "one attempt plus two retries")
}

func TestConnectWithRetry_AuthRejectedIsPermanent(t *testing.T) {
	gw := &flakyGateway{PaperGateway: NewPaperGateway(1000), failures: 10, err: ErrAuthRejected}
	err := ConnectWithRetry(context.Background(), gw, 5, time.Millisecond, zerolog.Nop())
	assert.ErrorIs(t, err, ErrAuthRejected)
	assert.Equal(t, 1, gw.attempts)
}

func TestNewGateway(t *testing.T) {
	gw, err := New("paper", HTTPConfig{}, 500)
	require.NoError(t, err)
	assert.Equal(t, "paper", gw.Name())

	gw, err = New("http", HTTPConfig{BaseURL: "http://bridge:8080"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "http", gw.Name())

	_, err = New("http", HTTPConfig{}, 0)
	assert.Error(t, err)
	_, err = New("mt5", HTTPConfig{}, 0)
	assert.Error(t, err)
}
