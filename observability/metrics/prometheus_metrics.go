// Package metrics provides Prometheus and CloudWatch implementations of
// types.Metrics for the assessment service.
package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements types.Metrics using the Prometheus client library.
// All metric names are prefixed with the sanitized service name.
type PrometheusMetrics struct {
	serviceName string

	// processedTotal tracks processed items by status and type
	processedTotal *prometheus.CounterVec
	// errorsTotal tracks errors by error type and operation
	errorsTotal *prometheus.CounterVec
	// durationSeconds tracks operation duration with default buckets
	durationSeconds *prometheus.HistogramVec
	// artifactSizeBytes tracks stored artifact sizes with exponential buckets
	artifactSizeBytes *prometheus.HistogramVec
	// findingsTotal counts persisted findings by severity
	findingsTotal *prometheus.CounterVec
	// inProgress tracks operations currently in progress
	inProgress *prometheus.GaugeVec
}

// New creates a PrometheusMetrics registered with the default registry.
//
// Pre-configured metrics:
//   - {name}_processed_total: successful and failed operations
//   - {name}_errors_total: errors by type and operation
//   - {name}_duration_seconds: operation durations
//   - {name}_artifact_size_bytes: stored scan artifact sizes
//   - {name}_findings_total: persisted findings by severity
//   - {name}_in_progress: concurrent operations
//
// Panics if registration fails (e.g., duplicate metric names).
func New(serviceName string) *PrometheusMetrics {
	return NewWithRegisterer(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a PrometheusMetrics registered with reg.
func NewWithRegisterer(serviceName string, reg prometheus.Registerer) *PrometheusMetrics {
	name := sanitize(serviceName)
	m := &PrometheusMetrics{serviceName: serviceName}

	m.processedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_processed_total", name),
			Help: fmt.Sprintf("Total processed items by %s", serviceName),
		},
		[]string{"status", "type"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_errors_total", name),
			Help: fmt.Sprintf("Total errors in %s", serviceName),
		},
		[]string{"error_type", "operation"},
	)

	m.durationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    fmt.Sprintf("%s_duration_seconds", name),
			Help:    fmt.Sprintf("Operation duration in %s", serviceName),
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	m.artifactSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: fmt.Sprintf("%s_artifact_size_bytes", name),
			Help: fmt.Sprintf("Scan artifact sizes stored by %s", serviceName),
			Buckets: []float64{
				1024,     // 1KB
				10240,    // 10KB
				102400,   // 100KB
				1048576,  // 1MB
				10485760, // 10MB
			},
		},
		[]string{"kind"},
	)

	m.findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_findings_total", name),
			Help: fmt.Sprintf("Findings persisted by %s", serviceName),
		},
		[]string{"severity"},
	)

	m.inProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_in_progress", name),
			Help: fmt.Sprintf("Operations in progress in %s", serviceName),
		},
		[]string{"operation"},
	)

	reg.MustRegister(
		m.processedTotal,
		m.errorsTotal,
		m.durationSeconds,
		m.artifactSizeBytes,
		m.findingsTotal,
		m.inProgress,
	)

	return m
}

// RecordSuccess increments {name}_processed_total with status="success".
func (m *PrometheusMetrics) RecordSuccess(operationType string) {
	m.processedTotal.WithLabelValues("success", operationType).Inc()
}

// RecordError increments both the processed counter (status="error") and
// the detailed error counter.
func (m *PrometheusMetrics) RecordError(operationType string, errorType string) {
	m.processedTotal.WithLabelValues("error", operationType).Inc()
	m.errorsTotal.WithLabelValues(errorType, operationType).Inc()
}

// RecordDuration records the duration of an operation in seconds.
func (m *PrometheusMetrics) RecordDuration(operation string, duration float64) {
	m.durationSeconds.WithLabelValues(operation).Observe(duration)
}

// RecordArtifactSize records the size of a stored artifact in bytes.
func (m *PrometheusMetrics) RecordArtifactSize(kind string, bytes int64) {
	m.artifactSizeBytes.WithLabelValues(kind).Observe(float64(bytes))
}

// RecordFindings adds count to the findings counter for severity.
func (m *PrometheusMetrics) RecordFindings(severity string, count int) {
	if count <= 0 {
		return
	}
	m.findingsTotal.WithLabelValues(severity).Add(float64(count))
}

// StartOperation increments the in-progress gauge for an operation.
//
// Example:
//
//	metrics.StartOperation("scan")
//	defer metrics.EndOperation("scan")
func (m *PrometheusMetrics) StartOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Inc()
}

// EndOperation decrements the in-progress gauge for an operation.
func (m *PrometheusMetrics) EndOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Dec()
}

// sanitize maps a component name onto the Prometheus metric name alphabet.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		default:
			return '_'
		}
	}, name)
}
