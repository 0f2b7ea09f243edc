// Package recorder persists markets, indicators, signals and trades for
// later analysis and for the read-only API.
package recorder

import (
	"context"
	"fmt"
	"time"

	"SpikeSentinel/internal/model"
)

// Kind selects the record collection.
type Kind string

const (
	KindMarket    Kind = "market"
	KindIndicator Kind = "indicator"
	KindSignal    Kind = "signal"
	KindTrade     Kind = "trade"
)

// Kinds lists every collection.
var Kinds = []Kind{KindMarket, KindIndicator, KindSignal, KindTrade}

// Valid reports whether k is a known collection.
func (k Kind) Valid() bool {
	switch k {
	case KindMarket, KindIndicator, KindSignal, KindTrade:
		return true
	}
	return false
}

// Fields is the payload of a record.
type Fields map[string]any

// Record is one stored row.
type Record struct {
	Kind      Kind      `json:"kind"`
	Key       string    `json:"key"`
	Fields    Fields    `json:"fields"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is an idempotent create-or-update store keyed by (kind, key).
// Upsert merges fields into an existing record.
type Store interface {
	Upsert(ctx context.Context, kind Kind, key string, fields Fields) error
	// List returns the most recently updated records first.
	List(ctx context.Context, kind Kind, limit int) ([]Record, error)
	Close() error
}

// MarketKey is the natural key of the latest bar of a symbol and timeframe.
func MarketKey(symbol string, tf model.Timeframe) string {
	return symbol + "|" + tf.String()
}

// IndicatorKey is the natural key of the latest snapshot of a symbol and timeframe.
func IndicatorKey(symbol string, tf model.Timeframe) string {
	return symbol + "|" + tf.String()
}

// SignalKey keys a composite signal by symbol and creation time in
// nanoseconds, so cycles started within the same second stay apart.
func SignalKey(symbol string, at time.Time) string {
	return fmt.Sprintf("%s|%d", symbol, at.UnixNano())
}

// TradeKey keys a trade by broker position, falling back to the order id.
func TradeKey(pos *model.Position) string {
	if pos.PositionID != "" {
		return pos.PositionID
	}
	return pos.OrderID
}

func checkKind(k Kind) error {
	if !k.Valid() {
		return fmt.Errorf("unknown record kind %q", k)
	}
	return nil
}
