package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds all Prometheus metrics
type PrometheusMetrics struct {
	// Solve metrics
	SolvesTotal     *prometheus.CounterVec
	SolveDuration   *prometheus.HistogramVec
	AttemptsTotal   *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec

	// Validation metrics
	ValidationRejected *prometheus.CounterVec

	// Batch metrics
	BatchesTotal    prometheus.Counter
	BatchItemsTotal *prometheus.CounterVec

	// Analysis cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Circuit breaker metrics
	CircuitOpenTotal *prometheus.CounterVec
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		SolvesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_solves_total",
				Help: "Total number of solve requests by category and verdict",
			},
			[]string{"category", "verdict"},
		),

		SolveDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fusion_solve_duration_seconds",
				Help:    "End-to-end solve latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"category"},
		),

		AttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_attempts_total",
				Help: "Total number of procedure attempts by procedure and outcome",
			},
			[]string{"procedure", "outcome"},
		),

		AttemptDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fusion_attempt_duration_seconds",
				Help:    "Single procedure attempt latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"procedure"},
		),

		ValidationRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_validation_rejected_total",
				Help: "Total number of inputs rejected by validation",
			},
			[]string{"reason"},
		),

		BatchesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fusion_batches_total",
				Help: "Total number of batches processed",
			},
		),

		BatchItemsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_batch_items_total",
				Help: "Total number of batch items by outcome",
			},
			[]string{"outcome"},
		),

		CacheHitsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fusion_analysis_cache_hits_total",
				Help: "Total number of analysis cache hits",
			},
		),

		CacheMissesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fusion_analysis_cache_misses_total",
				Help: "Total number of analysis cache misses",
			},
		),

		CircuitOpenTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_circuit_open_total",
				Help: "Total number of attempts skipped by an open circuit breaker",
			},
			[]string{"procedure"},
		),
	}
}

// RecordSolve records a finished solve
func (m *PrometheusMetrics) RecordSolve(category, verdict string, duration time.Duration) {
	m.SolvesTotal.WithLabelValues(category, verdict).Inc()
	m.SolveDuration.WithLabelValues(category).Observe(duration.Seconds())
}

// RecordAttempt records one procedure attempt
func (m *PrometheusMetrics) RecordAttempt(procedure, outcome string, duration time.Duration) {
	m.AttemptsTotal.WithLabelValues(procedure, outcome).Inc()
	m.AttemptDuration.WithLabelValues(procedure).Observe(duration.Seconds())
}

// RecordValidationRejected records an input rejected by validation
func (m *PrometheusMetrics) RecordValidationRejected(reason string) {
	m.ValidationRejected.WithLabelValues(reason).Inc()
}

// RecordBatch records a finished batch
func (m *PrometheusMetrics) RecordBatch(succeeded, failed, timedOut int) {
	m.BatchesTotal.Inc()
	m.BatchItemsTotal.WithLabelValues("succeeded").Add(float64(succeeded))
	m.BatchItemsTotal.WithLabelValues("failed").Add(float64(failed))
	m.BatchItemsTotal.WithLabelValues("timed_out").Add(float64(timedOut))
}

// RecordCacheHit records an analysis cache hit
func (m *PrometheusMetrics) RecordCacheHit() {
	m.CacheHitsTotal.Inc()
}

// RecordCacheMiss records an analysis cache miss
func (m *PrometheusMetrics) RecordCacheMiss() {
	m.CacheMissesTotal.Inc()
}

// RecordCircuitOpen records an attempt skipped by an open breaker
func (m *PrometheusMetrics) RecordCircuitOpen(procedure string) {
	m.CircuitOpenTotal.WithLabelValues(procedure).Inc()
}
