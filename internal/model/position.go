package model

import (
	"fmt"
	"time"
)

// Side is the direction of a position or order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// SideFor maps a BUY/SELL signal to a side. HOLD has no side.
func SideFor(t SignalType) (Side, bool) {
	switch t {
	case SignalBuy:
		return SideBuy, true
	case SignalSell:
		return SideSell, true
	default:
		return "", false
	}
}

// PositionKey identifies one logical position.
type PositionKey struct {
	Symbol string `json:"symbol"`
	Side   Side   `json:"side"`
}

func (k PositionKey) String() string { return fmt.Sprintf("%s:%s", k.Symbol, k.Side) }

// Position is the cache record for a position believed to be open.
type Position struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	OrderID    string    `json:"order_id"`
	PositionID string    `json:"position_id,omitempty"`
	EntryPrice float64   `json:"entry_price"`
	Volume     float64   `json:"volume"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Key returns the cache key of the position.
func (p *Position) Key() PositionKey { return PositionKey{Symbol: p.Symbol, Side: p.Side} }

// BrokerPosition is a live position as reported by the broker.
type BrokerPosition struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Side      Side    `json:"side"`
	Volume    float64 `json:"volume"`
	OpenPrice float64 `json:"open_price"`
	Profit    float64 `json:"profit"`
}

// OrderRequest is submitted to the broker to open a position.
type OrderRequest struct {
	Symbol string
	Side   Side
	Volume float64
	Price  float64
}

// Order status values reported by brokers.
const (
	OrderStatusFilled   = "FILLED"
	OrderStatusRejected = "REJECTED"
)

// OrderResult is the broker's answer to an order or close request.
type OrderResult struct {
	Status     string  `json:"status"`
	OrderID    string  `json:"order_id"`
	PositionID string  `json:"position_id,omitempty"`
	Price      float64 `json:"price"`
	Message    string  `json:"message,omitempty"`
}

// OK reports whether the broker confirmed the request.
func (r *OrderResult) OK() bool {
	return r != nil && r.Status == OrderStatusFilled
}
