package worker

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts protocol events across all workers
// sharing the struct
type Metrics struct {
	Transfers        *prometheus.CounterVec
	HeirAssignments  prometheus.Counter
	HeirReplacements prometheus.Counter
	MonitorChecks    prometheus.Counter
}

// NewMetrics creates worker metrics, registering them with
// registerer unless it is nil
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metrics := &Metrics{
		Transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heirloom_ownership_transfers_total",
			Help: "Number of store ownership transfers, by reason",
		}, []string{"reason"}),
		HeirAssignments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heirloom_heir_assignments_total",
			Help: "Number of heir registrations",
		}),
		HeirReplacements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heirloom_heir_replacements_total",
			Help: "Number of heirs replaced after termination or a failed liveness check",
		}),
		MonitorChecks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "heirloom_heir_liveness_checks_total",
			Help: "Number of heir liveness checks performed by owners",
		}),
	}

	if registerer != nil {
		registerer.MustRegister(
			metrics.Transfers,
			metrics.HeirAssignments,
			metrics.HeirReplacements,
			metrics.MonitorChecks,
		)
	}

	return metrics
}
