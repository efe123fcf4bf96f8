// Package metrics provides observability for the decision engine
package metrics

import (
	"net/http"
	"time"
)

// Metrics records observability signals for the decision engine
type Metrics interface {
	// RecordDecision records one completed evaluation by verdict
	RecordDecision(verdict string, duration time.Duration)

	// RecordEvaluationError records a failed evaluation by error kind
	// (configuration, retrieval, not_found, internal)
	RecordEvaluationError(kind string)

	// IncActiveRequests / DecActiveRequests track in-flight decision requests
	IncActiveRequests()
	DecActiveRequests()

	// RecordReload records the outcome of a policy reload
	RecordReload(success bool)

	// SetPoliciesLoaded tracks how many policies are currently served
	SetPoliciesLoaded(count int)

	// DecisionCounts returns the running totals per verdict since startup
	DecisionCounts() (permit, deny, undetermined uint64)

	// HTTPHandler serves the metrics for Prometheus scraping
	HTTPHandler() http.Handler
}

// NoOpMetrics provides a no-op implementation for testing/disabled monitoring
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new no-op metrics instance
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (n *NoOpMetrics) RecordDecision(verdict string, duration time.Duration) {}
func (n *NoOpMetrics) RecordEvaluationError(kind string)                     {}
func (n *NoOpMetrics) IncActiveRequests()                                    {}
func (n *NoOpMetrics) DecActiveRequests()                                    {}
func (n *NoOpMetrics) RecordReload(success bool)                             {}
func (n *NoOpMetrics) SetPoliciesLoaded(count int)                           {}

func (n *NoOpMetrics) DecisionCounts() (uint64, uint64, uint64) {
	return 0, 0, 0
}

// HTTPHandler returns a no-op handler
func (n *NoOpMetrics) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("# NoOp metrics - monitoring disabled\n"))
	})
}
