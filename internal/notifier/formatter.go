package notifier

import (
	"fmt"
	"strings"
	"time"

	"SpikeSentinel/internal/model"
	"SpikeSentinel/internal/trade"
)

// Status is the bot state shown by /status.
type Status struct {
	Symbols    []string
	Timeframes []model.Timeframe
	Connected  bool
	Cycles     int64
	Failures   int64
	LastCycle  time.Time
	Positions  int
	StartedAt  time.Time
}

// Summary aggregates the outcomes since the last daily report.
type Summary struct {
	Date    time.Time
	Cycles  int64
	Opened  int
	Closed  int
	Profit  float64
	Signals map[model.SignalType]int
}

// FormatOutcome renders an open or close. Other actions are not reported
// and return "".
func FormatOutcome(o trade.Outcome) string {
	var b strings.Builder
	switch o.Action {
	case trade.ActionOpened:
		icon := "🟢"
		if o.Key.Side == model.SideSell {
			icon = "🔴"
		}
		b.WriteString(fmt.Sprintf("%s <b>Opened %s</b> | %s\n", icon, o.Key.Side, o.Key.Symbol))
		if o.Position != nil {
			b.WriteString(fmt.Sprintf("Entry: %.5f\n", o.Position.EntryPrice))
			b.WriteString(fmt.Sprintf("Volume: %.2f\n", o.Position.Volume))
			b.WriteString(fmt.Sprintf("Order: %s\n", o.Position.OrderID))
		}
	case trade.ActionClosed:
		b.WriteString(fmt.Sprintf("⚪ <b>Closed %s</b> | %s\n", o.Key.Side, o.Key.Symbol))
		b.WriteString(fmt.Sprintf("Reason: %s\n", o.Reason))
		b.WriteString(fmt.Sprintf("Profit: %+.2f\n", o.Profit))
		if o.Position != nil {
			b.WriteString(fmt.Sprintf("Held: %s\n", o.At.Sub(o.Position.OpenedAt).Round(time.Second)))
		}
	default:
		return ""
	}
	b.WriteString(fmt.Sprintf("Time: %s", o.At.Format(time.DateTime)))
	return b.String()
}

// FormatSignal renders one composite signal with its timeframe breakdown.
func FormatSignal(sig *model.CompositeSignal) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>%s</b> | %s\n", sig.Symbol, sig.CreatedAt.Format(time.DateTime)))
	if sig.Price > 0 {
		b.WriteString(fmt.Sprintf("Price: %.5f\n", sig.Price))
	} else {
		b.WriteString("Price: n/a\n")
	}
	for _, tf := range sig.Timeframes {
		note := ""
		if tf.Insufficient {
			note = " (short history)"
		}
		b.WriteString(fmt.Sprintf("  %s: %s %.2f%s\n", tf.Timeframe, tf.Type, tf.Strength, note))
	}
	b.WriteString(fmt.Sprintf("Composite: %.3f (%s)\n", sig.Strength, sig.Category))
	b.WriteString(fmt.Sprintf("Action: <b>%s</b>", sig.Type))
	return b.String()
}

// FormatSignals renders the latest signal of each symbol.
func FormatSignals(signals []*model.CompositeSignal) string {
	if len(signals) == 0 {
		return "No signals yet."
	}
	parts := make([]string, 0, len(signals))
	for _, s := range signals {
		parts = append(parts, FormatSignal(s))
	}
	return strings.Join(parts, "\n\n")
}

// FormatPositions renders the position cache.
func FormatPositions(positions []model.Position) string {
	if len(positions) == 0 {
		return "📦 No open positions."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📦 <b>Open positions (%d)</b>\n\n", len(positions)))
	for _, p := range positions {
		b.WriteString(fmt.Sprintf("%s %s @ %.5f x %.2f since %s\n",
			p.Symbol, p.Side, p.EntryPrice, p.Volume, p.OpenedAt.Format("01-02 15:04")))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatStatus renders the bot state.
func FormatStatus(s Status) string {
	var b strings.Builder
	b.WriteString("🤖 <b>SpikeSentinel status</b>\n\n")
	conn := "connected"
	if !s.Connected {
		conn = "disconnected"
	}
	b.WriteString(fmt.Sprintf("Broker: %s\n", conn))
	b.WriteString(fmt.Sprintf("Symbols: %s\n", strings.Join(s.Symbols, ", ")))
	tfs := make([]string, len(s.Timeframes))
	for i, tf := range s.Timeframes {
		tfs[i] = string(tf)
	}
	b.WriteString(fmt.Sprintf("Timeframes: %s\n", strings.Join(tfs, ", ")))
	b.WriteString(fmt.Sprintf("Cycles: %d (failed %d)\n", s.Cycles, s.Failures))
	if s.LastCycle.IsZero() {
		b.WriteString("Last cycle: never\n")
	} else {
		b.WriteString(fmt.Sprintf("Last cycle: %s\n", s.LastCycle.Format(time.DateTime)))
	}
	b.WriteString(fmt.Sprintf("Open positions: %d\n", s.Positions))
	if !s.StartedAt.IsZero() {
		b.WriteString(fmt.Sprintf("Running since: %s", s.StartedAt.Format(time.DateTime)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSummary renders the daily report.
func FormatSummary(s Summary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📅 <b>Daily summary</b> | %s\n\n", s.Date.Format(time.DateOnly)))
	b.WriteString(fmt.Sprintf("Cycles: %d\n", s.Cycles))
	b.WriteString(fmt.Sprintf("Signals: BUY %d | SELL %d | HOLD %d\n",
		s.Signals[model.SignalBuy], s.Signals[model.SignalSell], s.Signals[model.SignalHold]))
	b.WriteString(fmt.Sprintf("Opened: %d | Closed: %d\n", s.Opened, s.Closed))
	b.WriteString(fmt.Sprintf("Realized profit: %+.2f", s.Profit))
	return b.String()
}

// HelpText lists the supported commands.
const HelpText = "Commands:\n/status - bot state\n/positions - open positions\n/signals - latest signals\n/help - this message"
