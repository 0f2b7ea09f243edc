package strategy

import "SpikeSentinel/internal/model"

// Thresholds are the lower bounds of each composite category.
type Thresholds struct {
	StrongBuy float64 `yaml:"strong_buy"`
	WeakBuy   float64 `yaml:"weak_buy"`
	Neutral   float64 `yaml:"neutral"`
	WeakSell  float64 `yaml:"weak_sell"`
}

// DefaultThresholds returns the standard category bands.
func DefaultThresholds() Thresholds {
	return Thresholds{StrongBuy: 0.8, WeakBuy: 0.6, Neutral: 0.4, WeakSell: 0.2}
}

// Valid reports whether the bounds are strictly descending inside [0,1].
func (t Thresholds) Valid() bool {
	return t.StrongBuy <= 1 && t.StrongBuy > t.WeakBuy && t.WeakBuy > t.Neutral &&
		t.Neutral > t.WeakSell && t.WeakSell >= 0
}

// Categorize maps a composite strength to its category.
func (t Thresholds) Categorize(strength float64) model.Category {
	tiers := []struct {
		min      float64
		category model.Category
	}{
		{t.StrongBuy, model.CategoryStrongBuy},
		{t.WeakBuy, model.CategoryWeakBuy},
		{t.Neutral, model.CategoryNeutral},
		{t.WeakSell, model.CategoryWeakSell},
	}
	for _, tier := range tiers {
		if strength >= tier.min {
			return tier.category
		}
	}
	return model.CategoryStrongSell
}
