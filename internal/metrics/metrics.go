// Package metrics exposes the service's Prometheus metrics, replacing
// the teacher's bespoke GORM-aggregated MetricsSummary endpoint
// (internal/usecase/metrics.go) with a pull-based /metrics surface —
// the idiomatic home for this kind of summary in a service that no
// longer persists verification logs. Grounded in abramin-Credo's
// promauto.NewCounter pattern (internal/platform/metrics/metrics.go).
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the gateways report.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	StageLatency     *prometheus.HistogramVec
	ChallengesIssued prometheus.Counter
	ChallengesConsumed *prometheus.CounterVec
	VerificationsByStatus *prometheus.CounterVec
}

// New builds and registers the Metrics collectors against the default registry.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_http_requests_total",
			Help: "Total HTTP requests handled, by route and status.",
		}, []string{"route", "status"}),
		StageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kyc_stage_latency_seconds",
			Help:    "Latency of an individual stage invocation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		ChallengesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kyc_challenges_issued_total",
			Help: "Total liveness challenges issued.",
		}),
		ChallengesConsumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_challenges_consumed_total",
			Help: "Total liveness challenge consume attempts, by result.",
		}, []string{"result"}),
		VerificationsByStatus: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kyc_verifications_total",
			Help: "Total verification verdicts, by terminal status.",
		}, []string{"status"}),
	}
}

// ObserveStageLatency records how long a stage invocation took.
func (m *Metrics) ObserveStageLatency(stage string, d time.Duration) {
	m.StageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(route, status string) {
	m.RequestsTotal.WithLabelValues(route, status).Inc()
}

// ObserveChallengeConsumed records one challenge consume attempt outcome.
func (m *Metrics) ObserveChallengeConsumed(result string) {
	m.ChallengesConsumed.WithLabelValues(result).Inc()
}

// ObserveVerification records one verification verdict's terminal status.
func (m *Metrics) ObserveVerification(status string) {
	m.VerificationsByStatus.WithLabelValues(status).Inc()
}

// ObserveChallengeIssued records one liveness challenge issuance.
func (m *Metrics) ObserveChallengeIssued() {
	m.ChallengesIssued.Inc()
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide Metrics singleton, building it on
// first use. Mirrors the Stage Registry's sync.Once latch so repeated
// callers that each want "the" Metrics instance (both gateway processes,
// or multiple servers built within one test binary) never attempt to
// register the same collector names against the default registry twice.
func Default() *Metrics {
	defaultOnce.Do(func() { defaultMetrics = New() })
	return defaultMetrics
}
