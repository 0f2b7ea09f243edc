package broker

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SpikeSentinel/internal/model"
)

// maxPaperBars caps generated history per request.
const maxPaperBars = 2000

// PaperGateway is an in-memory broker for dry runs and tests. Bars come
// from preset series or a deterministic synthetic walk; orders fill at
// the current price and closes book PnL into a decimal ledger.
type PaperGateway struct {
	mu        sync.Mutex
	connected bool
	series    map[string]map[model.Timeframe]*model.PriceSeries
	prices    map[string]float64
	positions map[string]model.BrokerPosition
	order     []string
	realized  decimal.Decimal
	submitted int
	closed    int
	failWith  map[string]error

	// BasePrice seeds synthetic bars for symbols without a preset series.
	BasePrice float64
	now       func() time.Time
}

// NewPaperGateway creates a disconnected paper broker.
func NewPaperGateway(basePrice float64) *PaperGateway {
	if basePrice <= 0 {
		basePrice = 1000
	}
	return &PaperGateway{
		series:    make(map[string]map[model.Timeframe]*model.PriceSeries),
		prices:    make(map[string]float64),
		positions: make(map[string]model.BrokerPosition),
		failWith:  make(map[string]error),
		BasePrice: basePrice,
		now:       time.Now,
	}
}

func (p *PaperGateway) Name() string { return "paper" }

func (p *PaperGateway) Connect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failWith["connect"]; err != nil {
		return err
	}
	p.connected = true
	return nil
}

func (p *PaperGateway) Close() error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

// Disconnect drops the session so the next call fails with ConnectivityError.
func (p *PaperGateway) Disconnect() { _ = p.Close() }

// SetSeries installs a fixed series for symbol and timeframe.
func (p *PaperGateway) SetSeries(s *model.PriceSeries) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.series[s.Symbol] == nil {
		p.series[s.Symbol] = make(map[model.Timeframe]*model.PriceSeries)
	}
	p.series[s.Symbol][s.Timeframe] = s
}

// SetPrice fixes the quote for symbol. A non-positive price makes the
// symbol unquoted.
func (p *PaperGateway) SetPrice(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// FailOn makes every call of op ("connect", "bars", "price", "positions",
// "order", "close") return err until cleared with a nil err.
func (p *PaperGateway) FailOn(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failWith, op)
		return
	}
	p.failWith[op] = err
}

// Submitted returns the number of open orders received.
func (p *PaperGateway) Submitted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submitted
}

// Closed returns the number of close requests received.
func (p *PaperGateway) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// RealizedPnL returns the booked profit of all closed positions.
func (p *PaperGateway) RealizedPnL() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realized
}

// check must be called with mu held.
func (p *PaperGateway) check(op string) error {
	if !p.connected {
		return &ConnectivityError{Op: op, Err: ErrNotConnected}
	}
	return p.failWith[op]
}

func (p *PaperGateway) FetchBars(_ context.Context, symbol string, tf model.Timeframe, start, end time.Time) (*model.PriceSeries, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("bars"); err != nil {
		return nil, err
	}
	if s, ok := p.series[symbol][tf]; ok {
		out := &model.PriceSeries{Symbol: symbol, Timeframe: tf}
		for _, b := range s.Bars {
			if (start.IsZero() || !b.Time.Before(start)) && (end.IsZero() || !b.Time.After(end)) {
				out.Bars = append(out.Bars, b)
			}
		}
		return out, nil
	}
	return p.synthetic(symbol, tf, start, end), nil
}

// synthetic generates a deterministic oscillating walk with a periodic spike.
func (p *PaperGateway) synthetic(symbol string, tf model.Timeframe, start, end time.Time) *model.PriceSeries {
	step := tf.Duration()
	count := int(end.Sub(start) / step)
	if count > maxPaperBars {
		count = maxPaperBars
	}
	if count < 0 {
		count = 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	phase := float64(h.Sum32()%360) * math.Pi / 180

	bars := make([]model.OHLCV, count)
	first := end.Add(-time.Duration(count) * step).Truncate(step)
	for i := 0; i < count; i++ {
		t := first.Add(time.Duration(i) * step)
		n := float64(t.Unix() / int64(step/time.Second))
		price := p.BasePrice * (1 + 0.01*math.Sin(n/12+phase))
		if int64(n)%97 == 0 {
			price *= 1.02
		}
		bars[i] = model.OHLCV{
			Time:   t,
			Open:   price * 0.9995,
			High:   price * 1.001,
			Low:    price * 0.999,
			Close:  price,
			Volume: 1000,
		}
	}
	return &model.PriceSeries{Symbol: symbol, Timeframe: tf, Bars: bars}
}

func (p *PaperGateway) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("price"); err != nil {
		return 0, err
	}
	return p.priceLocked(symbol)
}

func (p *PaperGateway) priceLocked(symbol string) (float64, error) {
	if v, ok := p.prices[symbol]; ok {
		if v <= 0 {
			return 0, fmt.Errorf("%w for %s", ErrNoPrice, symbol)
		}
		return v, nil
	}
	if s, ok := p.series[symbol][model.M1]; ok && s.Len() > 0 {
		return s.LastClose(), nil
	}
	now := p.now()
	s := p.synthetic(symbol, model.M1, now.Add(-time.Minute), now)
	if s.Len() == 0 {
		return 0, fmt.Errorf("%w for %s", ErrNoPrice, symbol)
	}
	return s.LastClose(), nil
}

func (p *PaperGateway) OpenPositions(_ context.Context, symbol string) ([]model.BrokerPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("positions"); err != nil {
		return nil, err
	}
	out := make([]model.BrokerPosition, 0, len(p.order))
	for _, id := range p.order {
		pos := p.positions[id]
		if symbol != "" && pos.Symbol != symbol {
			continue
		}
		if price, err := p.priceLocked(pos.Symbol); err == nil {
			pos.Profit = profit(pos, price).InexactFloat64()
		}
		out = append(out, pos)
	}
	return out, nil
}

func (p *PaperGateway) SubmitOrder(_ context.Context, req model.OrderRequest) (*model.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("order"); err != nil {
		return nil, err
	}
	p.submitted++
	price := req.Price
	if price <= 0 {
		var err error
		if price, err = p.priceLocked(req.Symbol); err != nil {
			return &model.OrderResult{Status: model.OrderStatusRejected, Message: err.Error()}, nil
		}
	}
	pos := model.BrokerPosition{
		ID:        uuid.NewString(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Volume:    RoundVolume(req.Volume),
		OpenPrice: RoundPrice(price),
	}
	p.positions[pos.ID] = pos
	p.order = append(p.order, pos.ID)
	return &model.OrderResult{
		Status:     model.OrderStatusFilled,
		OrderID:    uuid.NewString(),
		PositionID: pos.ID,
		Price:      pos.OpenPrice,
	}, nil
}

func (p *PaperGateway) ClosePosition(_ context.Context, positionID string) (*model.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("close"); err != nil {
		return nil, err
	}
	p.closed++
	pos, ok := p.positions[positionID]
	if !ok {
		return &model.OrderResult{Status: model.OrderStatusRejected, Message: "unknown position " + positionID}, nil
	}
	price, err := p.priceLocked(pos.Symbol)
	if err != nil {
		return &model.OrderResult{Status: model.OrderStatusRejected, Message: err.Error()}, nil
	}
	p.realized = p.realized.Add(profit(pos, price))
	delete(p.positions, positionID)
	for i, id := range p.order {
		if id == positionID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return &model.OrderResult{
		Status:     model.OrderStatusFilled,
		OrderID:    uuid.NewString(),
		PositionID: positionID,
		Price:      RoundPrice(price),
	}, nil
}

func profit(pos model.BrokerPosition, price float64) decimal.Decimal {
	diff := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(pos.OpenPrice))
	if pos.Side == model.SideSell {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromFloat(pos.Volume))
}
