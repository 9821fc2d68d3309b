package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit recording.
type Metrics struct {
	Recorded        prometheus.Counter
	Dropped         *prometheus.CounterVec
	PersistFailures prometheus.Counter
	BreakerState    prometheus.Gauge
}

// NewMetrics registers audit metrics on the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		Recorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vitalis_audit_entries_recorded_total",
			Help: "Total number of audit entries persisted",
		}),
		Dropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalis_audit_entries_dropped_total",
			Help: "Total number of audit entries dropped before persistence",
		}, []string{"reason"}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vitalis_audit_persist_failures_total",
			Help: "Total number of audit store write failures",
		}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vitalis_audit_circuit_breaker_state",
			Help: "Audit store circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) incRecorded() {
	if m != nil {
		m.Recorded.Inc()
	}
}

func (m *Metrics) incDropped(reason string) {
	if m != nil {
		m.Dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) incPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

func (m *Metrics) setBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerState.Set(1)
	} else {
		m.BreakerState.Set(0)
	}
}
