package gate

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts gate outcomes.
type Metrics struct {
	Requests   prometheus.Counter
	Blocked    prometheus.Counter
	Correlated prometheus.Counter
}

// NewMetrics creates and registers the gate counters.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leakwatch_requests_total",
			Help: "Network events received at the enforcement gate.",
		}),
		Blocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leakwatch_blocked_total",
			Help: "Network events rejected because their host is blocklisted.",
		}),
		Correlated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "leakwatch_correlated_total",
			Help: "Admitted network events that matched a recent clipboard action.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Blocked, m.Correlated)
	}
	return m
}
