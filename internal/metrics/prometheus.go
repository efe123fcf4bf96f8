package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/verdict-engine/go-core/pkg/types"
)

// PrometheusMetrics implements Metrics using Prometheus with a dedicated
// registry, plus atomic per-verdict counters for the status endpoint
type PrometheusMetrics struct {
	// Running per-verdict totals (atomic, read by DecisionCounts)
	permits      atomic.Uint64
	denies       atomic.Uint64
	undetermined atomic.Uint64

	// Prometheus metrics (for HTTP export)
	decisionsTotal   *prometheus.CounterVec
	decisionDuration prometheus.Histogram
	evaluationErrors *prometheus.CounterVec
	activeRequests   prometheus.Gauge
	policyReloads    *prometheus.CounterVec
	policiesLoaded   prometheus.Gauge

	registry *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	// Register standard Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	decisionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total number of policy decisions by verdict",
		},
		[]string{"verdict"},
	)

	// Decision latency: 1µs to 10ms (sub-millisecond expected)
	decisionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_microseconds",
			Help:      "Policy decision latency in microseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 10000},
		},
	)

	evaluationErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_errors_total",
			Help:      "Total number of failed evaluations by error kind",
		},
		[]string{"kind"},
	)

	activeRequests := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of in-flight decision requests",
		},
	)

	policyReloads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "reloads_total",
			Help:      "Total number of policy reloads by outcome",
		},
		[]string{"status"},
	)

	policiesLoaded := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "policy",
			Name:      "loaded",
			Help:      "Number of policies currently loaded",
		},
	)

	registry.MustRegister(
		decisionsTotal,
		decisionDuration,
		evaluationErrors,
		activeRequests,
		policyReloads,
		policiesLoaded,
	)

	return &PrometheusMetrics{
		decisionsTotal:   decisionsTotal,
		decisionDuration: decisionDuration,
		evaluationErrors: evaluationErrors,
		activeRequests:   activeRequests,
		policyReloads:    policyReloads,
		policiesLoaded:   policiesLoaded,
		registry:         registry,
	}
}

// RecordDecision records one completed evaluation (zero-allocation hot path
// for the atomic totals; the Prometheus client is itself thread-safe)
func (p *PrometheusMetrics) RecordDecision(verdict string, duration time.Duration) {
	switch verdict {
	case types.Permit.String():
		p.permits.Add(1)
	case types.Deny.String():
		p.denies.Add(1)
	default:
		p.undetermined.Add(1)
	}

	p.decisionsTotal.WithLabelValues(verdict).Inc()
	p.decisionDuration.Observe(float64(duration.Microseconds()))
}

// RecordEvaluationError records a failed evaluation
func (p *PrometheusMetrics) RecordEvaluationError(kind string) {
	p.evaluationErrors.WithLabelValues(kind).Inc()
}

// IncActiveRequests increments in-flight decision requests
func (p *PrometheusMetrics) IncActiveRequests() {
	p.activeRequests.Inc()
}

// DecActiveRequests decrements in-flight decision requests
func (p *PrometheusMetrics) DecActiveRequests() {
	p.activeRequests.Dec()
}

// RecordReload records the outcome of a policy reload
func (p *PrometheusMetrics) RecordReload(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	p.policyReloads.WithLabelValues(status).Inc()
}

// SetPoliciesLoaded updates the loaded-policy gauge
func (p *PrometheusMetrics) SetPoliciesLoaded(count int) {
	p.policiesLoaded.Set(float64(count))
}

// DecisionCounts returns the running totals per verdict since startup
func (p *PrometheusMetrics) DecisionCounts() (permit, deny, undetermined uint64) {
	return p.permits.Load(), p.denies.Load(), p.undetermined.Load()
}

// HTTPHandler returns the Prometheus HTTP handler for the /metrics endpoint
func (p *PrometheusMetrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
