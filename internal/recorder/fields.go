package recorder

import (
	"math"
	"time"

	"SpikeSentinel/internal/model"
)

// MarketFields describes the latest bar of a series.
func MarketFields(s *model.PriceSeries) Fields {
	b := s.Last()
	return Fields{
		"name":       s.Symbol,
		"symbol":     s.Symbol,
		"time_frame": s.Timeframe.String(),
		"open":       b.Open,
		"high":       b.High,
		"low":        b.Low,
		"close":      b.Close,
		"volume":     b.Volume,
		"bar_time":   b.Time.UTC().Format(time.RFC3339),
		"bars":       s.Len(),
		"is_active":  true,
	}
}

// IndicatorFields flattens a snapshot. Missing indicators are stored as null.
func IndicatorFields(symbol string, tf model.Timeframe, snap model.IndicatorSnapshot) Fields {
	return Fields{
		"symbol":          symbol,
		"time_frame":      tf.String(),
		"close":           num(snap.Close),
		"moving_average":  num(snap.MAShort),
		"ma_long":         num(snap.MALong),
		"ema_short":       num(snap.EMAShort),
		"ema_long":        num(snap.EMALong),
		"rsi":             num(snap.RSI),
		"macd":            num(snap.MACD),
		"macd_signal":     num(snap.MACDSignal),
		"macd_hist":       num(snap.MACDHist),
		"bollinger_bands": num(snap.BBMiddle),
		"bb_upper":        num(snap.BBUpper),
		"bb_lower":        num(snap.BBLower),
		"atr":             num(snap.ATR),
		"pivot":           num(snap.Pivot.Pivot),
		"pivot_r1":        num(snap.Pivot.R1),
		"pivot_s1":        num(snap.Pivot.S1),
		"missing":         snap.Missing,
		"is_active":       true,
	}
}

// SignalFields describes a composite signal and its timeframe breakdown.
func SignalFields(sig *model.CompositeSignal) Fields {
	tfs := make(map[string]any, len(sig.Timeframes))
	for _, t := range sig.Timeframes {
		tfs[t.Timeframe.String()] = map[string]any{
			"signal":       string(t.Type),
			"strength":     t.Strength,
			"insufficient": t.Insufficient,
		}
	}
	return Fields{
		"symbol":     sig.Symbol,
		"signal":     string(sig.Type),
		"strength":   sig.Strength,
		"category":   string(sig.Category),
		"vote":       sig.Vote,
		"price":      sig.Price,
		"timeframes": tfs,
		"created_at": sig.CreatedAt.UTC().Format(time.RFC3339),
		"is_active":  true,
	}
}

// TradeOpenFields records a freshly opened position.
func TradeOpenFields(pos *model.Position) Fields {
	return Fields{
		"symbol":      pos.Symbol,
		"side":        string(pos.Side),
		"order_id":    pos.OrderID,
		"position_id": pos.PositionID,
		"entry_price": pos.EntryPrice,
		"volume":      pos.Volume,
		"opened_at":   pos.OpenedAt.UTC().Format(time.RFC3339),
		"is_active":   true,
	}
}

// TradeCloseFields marks a trade closed. It is merged into the open record.
func TradeCloseFields(exitPrice, profit float64, reason string, at time.Time) Fields {
	return Fields{
		"exit_price": exitPrice,
		"profit":     profit,
		"reason":     reason,
		"closed_at":  at.UTC().Format(time.RFC3339),
		"is_active":  false,
	}
}

// num maps NaN and Inf to nil, which JSON cannot encode.
func num(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
