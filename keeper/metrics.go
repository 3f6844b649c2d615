package keeper

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts keeper lifecycle events
type Metrics struct {
	StoresCreated prometheus.Counter
	StoresStopped prometheus.Counter
	LiveStores    prometheus.Gauge
}

// NewMetrics creates keeper metrics, registering them with
// registerer unless it is nil
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		StoresCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heirloom_stores_created_total",
			Help: "Number of stores created",
		}),
		StoresStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heirloom_stores_stopped_total",
			Help: "Number of stores stopped or destroyed",
		}),
		LiveStores: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "heirloom_live_stores",
			Help: "Number of stores currently kept alive",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			metrics.StoresCreated,
			metrics.StoresStopped,
			metrics.LiveStores,
		)
	}

	return metrics
}
