package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistered(t *testing.T) {
	SignalsTotal.WithLabelValues("Boom 1000 Index", "BUY").Inc()
	OrdersTotal.WithLabelValues("Boom 1000 Index", "BUY", "opened").Inc()
	CompositeStrength.WithLabelValues("Boom 1000 Index").Set(0.9)

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	want := map[string]bool{
		"sentinel_signals_total":      false,
		"sentinel_orders_total":       false,
		"sentinel_composite_strength": false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("%s metric not found", name)
		}
	}
}
