package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for audit runs and the HTTP surface
type Metrics struct {
	auditsTotal        *prometheus.CounterVec
	auditDuration      prometheus.Histogram
	detectorRunsTotal  *prometheus.CounterVec
	detectorDuration   *prometheus.HistogramVec
	violationsTotal    *prometheus.CounterVec
	incidentsTotal     prometheus.Counter
	skippedTotal       *prometheus.CounterVec
	httpRequestsTotal  *prometheus.CounterVec
	httpRequestLatency *prometheus.HistogramVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		auditsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_audit_runs_total",
				Help: "Total number of audit runs by outcome",
			},
			[]string{"outcome"},
		),
		auditDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fleet_audit_duration_seconds",
				Help:    "Audit run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		detectorRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_audit_detector_runs_total",
				Help: "Detector executions by detector and status",
			},
			[]string{"detector", "status"},
		),
		detectorDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleet_audit_detector_duration_seconds",
				Help:    "Detector duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"detector"},
		),
		violationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_audit_raw_violations_total",
				Help: "Raw findings by violation type",
			},
			[]string{"type"},
		),
		incidentsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fleet_audit_incidents_total",
				Help: "Consolidated incidents reported",
			},
		),
		skippedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_audit_skipped_records_total",
				Help: "Malformed input records dropped by source",
			},
			[]string{"source"},
		),
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "status"},
		),
	}
}

// ObserveAudit records one finished run
func (m *Metrics) ObserveAudit(outcome string, d time.Duration) {
	m.auditsTotal.WithLabelValues(outcome).Inc()
	m.auditDuration.Observe(d.Seconds())
}

// ObserveDetector records one detector execution
func (m *Metrics) ObserveDetector(detector, status string, d time.Duration) {
	m.detectorRunsTotal.WithLabelValues(detector, status).Inc()
	if d > 0 {
		m.detectorDuration.WithLabelValues(detector).Observe(d.Seconds())
	}
}

// AddViolations counts raw findings of one type
func (m *Metrics) AddViolations(violationType string, n int) {
	m.violationsTotal.WithLabelValues(violationType).Add(float64(n))
}

// AddIncidents counts consolidated incidents
func (m *Metrics) AddIncidents(n int) {
	m.incidentsTotal.Add(float64(n))
}

// AddSkipped counts dropped records of one source
func (m *Metrics) AddSkipped(source string, n int) {
	m.skippedTotal.WithLabelValues(source).Add(float64(n))
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, endpoint string, status int, d time.Duration) {
	code := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(method, endpoint, code).Inc()
	m.httpRequestLatency.WithLabelValues(method, endpoint, code).Observe(d.Seconds())
}
