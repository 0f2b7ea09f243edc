package model

import "time"

// SignalType is the discrete trading decision.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Category labels a composite strength band.
type Category string

const (
	CategoryStrongBuy  Category = "strong buy"
	CategoryWeakBuy    Category = "weak buy"
	CategoryNeutral    Category = "neutral"
	CategoryWeakSell   Category = "weak sell"
	CategoryStrongSell Category = "strong sell"
)

// SignalType maps a category to the action it implies.
func (c Category) SignalType() SignalType {
	switch c {
	case CategoryStrongBuy, CategoryWeakBuy:
		return SignalBuy
	case CategoryStrongSell, CategoryWeakSell:
		return SignalSell
	default:
		return SignalHold
	}
}

// TimeframeSignal is the judgment for one timeframe in one cycle.
type TimeframeSignal struct {
	Timeframe Timeframe  `json:"timeframe"`
	Type      SignalType `json:"type"`
	Strength  float64    `json:"strength"`
	// Insufficient is set when the series was too short to evaluate.
	Insufficient bool `json:"insufficient,omitempty"`
}

// CompositeSignal is the combined judgment for one symbol in one cycle.
type CompositeSignal struct {
	Symbol     string            `json:"symbol"`
	Price      float64           `json:"price"`
	Strength   float64           `json:"strength"`
	Category   Category          `json:"category"`
	Type       SignalType        `json:"type"`
	Vote       int               `json:"vote"` // +1 all BUY, -1 all SELL, 0 otherwise
	Timeframes []TimeframeSignal `json:"timeframes"`
	// Pivot holds the pivot levels of the longest timeframe's last bar.
	Pivot      *PivotLevels      `json:"pivot,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
