package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sentinel_cycles_total", Help: "Evaluation cycles by symbol and result"},
		[]string{"symbol", "result"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sentinel_signals_total", Help: "Composite signals by symbol and type"},
		[]string{"symbol", "type"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sentinel_orders_total", Help: "Lifecycle actions by symbol, side and action"},
		[]string{"symbol", "side", "action"},
	)
	CompositeStrength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "sentinel_composite_strength", Help: "Latest composite strength per symbol"},
		[]string{"symbol"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "sentinel_open_positions", Help: "Positions in the position cache"},
	)
	CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "sentinel_cycle_duration_seconds", Help: "Per-symbol cycle latency", Buckets: prometheus.DefBuckets},
		[]string{"symbol"},
	)
	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sentinel_broker_reconnects_total", Help: "Broker reconnect attempts"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, SignalsTotal, OrdersTotal, CompositeStrength, OpenPositions, CycleDuration, ReconnectsTotal)
}
