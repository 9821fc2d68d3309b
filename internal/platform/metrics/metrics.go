package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the application's Prometheus collectors. A nil *Metrics is
// valid and records nothing, which keeps unit tests free of global registration.
type Metrics struct {
	ScanRuns             prometheus.Counter
	FlagsCreated         *prometheus.CounterVec
	ScanPolicyFailures   *prometheus.CounterVec
	ScanDuration         prometheus.Histogram
	FlagReviews          *prometheus.CounterVec
	RecordsPurged        *prometheus.CounterVec
	DeletionRequests     *prometheus.CounterVec
	DeletionTransitions  *prometheus.CounterVec
	Exports              *prometheus.CounterVec
	ExportDomainFailures *prometheus.CounterVec
	ExportDuration       prometheus.Histogram
	EndpointLatency      *prometheus.HistogramVec
	ChangeSubscribers    prometheus.Gauge
}

// New creates and registers all metrics with the default registry.
// Call it once per process.
func New() *Metrics {
	return &Metrics{
		ScanRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vitalis_retention_scan_runs_total",
			Help: "Retention scans executed",
		}),
		FlagsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalis_retention_flags_created_total",
			Help: "Pending retention flags created by scans",
		}, []string{"data_type"}),
		ScanPolicyFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalis_retention_scan_policy_failures_total",
			Help: "Policies that failed during a scan",
		}, []string{"data_type"}),
		ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vitalis_retention_scan_duration_seconds",
			Help:    "Wall time of a full retention scan",
			Buckets: prometheus.DefBuckets,
		}),
		FlagReviews: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalis_retention_flag_reviews_total",
			Help: "Retention flags reviewed, by decision",
		}, []string{"decision"}),
		RecordsPurged: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalis_retention_records_purged_total",
			Help: "Domain records deleted after a deleted decision",
		}, []string{"data_type"}),
		DeletionRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalis_deletion_requests_submitted_total",
			Help: "Deletion requests submitted, by type",
		}, []string{"request_type"}),
		DeletionTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalis_deletion_request_transitions_total",
			Help: "Deletion request status transitions, by target status",
		}, []string{"status"}),
		Exports: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalis_exports_total",
			Help: "User data exports, by format and outcome",
		}, []string{"format", "outcome"}),
		ExportDomainFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vitalis_export_domain_failures_total",
			Help: "Domain fetch failures during export",
		}, []string{"domain"}),
		ExportDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vitalis_export_duration_seconds",
			Help:    "Wall time of a user data export",
			Buckets: prometheus.DefBuckets,
		}),
		EndpointLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vitalis_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		ChangeSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vitalis_changefeed_subscribers",
			Help: "Open change feed subscriptions",
		}),
	}
}

func (m *Metrics) ObserveScan(d time.Duration) {
	if m == nil {
		return
	}
	m.ScanRuns.Inc()
	m.ScanDuration.Observe(d.Seconds())
}

func (m *Metrics) IncrementFlagsCreated(dataType string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.FlagsCreated.WithLabelValues(dataType).Add(float64(n))
}

func (m *Metrics) IncrementScanPolicyFailure(dataType string) {
	if m == nil {
		return
	}
	m.ScanPolicyFailures.WithLabelValues(dataType).Inc()
}

func (m *Metrics) IncrementFlagReview(decision string) {
	if m == nil {
		return
	}
	m.FlagReviews.WithLabelValues(decision).Inc()
}

func (m *Metrics) IncrementRecordsPurged(dataType string) {
	if m == nil {
		return
	}
	m.RecordsPurged.WithLabelValues(dataType).Inc()
}

func (m *Metrics) IncrementDeletionRequest(requestType string) {
	if m == nil {
		return
	}
	m.DeletionRequests.WithLabelValues(requestType).Inc()
}

func (m *Metrics) IncrementDeletionTransition(status string) {
	if m == nil {
		return
	}
	m.DeletionTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveExport(format, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Exports.WithLabelValues(format, outcome).Inc()
	m.ExportDuration.Observe(d.Seconds())
}

func (m *Metrics) IncrementExportDomainFailure(domain string) {
	if m == nil {
		return
	}
	m.ExportDomainFailures.WithLabelValues(domain).Inc()
}

func (m *Metrics) ObserveEndpointLatency(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.EndpointLatency.WithLabelValues(method, route, statusClass(status)).Observe(d.Seconds())
}

func (m *Metrics) AddChangeSubscriber(delta float64) {
	if m == nil {
		return
	}
	m.ChangeSubscribers.Add(delta)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
