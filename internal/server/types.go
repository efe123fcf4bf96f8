package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/verdict-engine/go-core/internal/policy"
	"github.com/verdict-engine/go-core/pkg/attribute"
	"github.com/verdict-engine/go-core/pkg/types"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// DecisionRequest asks for one policy evaluation. An empty policy name falls
// back to the server's default policy.
type DecisionRequest struct {
	Policy  string                 `json:"policy,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// DecisionResponse carries the verdict of one evaluation
type DecisionResponse struct {
	RequestID    string `json:"requestId"`
	Verdict      string `json:"verdict"`
	Policy       string `json:"policy"`
	EvaluationUs int64  `json:"evaluationUs"`
}

// BatchDecisionRequest asks for several independent evaluations
type BatchDecisionRequest struct {
	Items []DecisionRequest `json:"items"`
}

// BatchDecisionResponse carries positional verdicts for a batch.
// EvaluationUs covers the whole batch.
type BatchDecisionResponse struct {
	RequestID    string        `json:"requestId"`
	Results      []BatchResult `json:"results"`
	EvaluationUs int64         `json:"evaluationUs"`
}

// BatchResult is the verdict of one batch item
type BatchResult struct {
	Policy  string `json:"policy"`
	Verdict string `json:"verdict"`
}

// PolicySummary describes one stored policy
type PolicySummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind"`
}

// PolicyListResponse lists the stored policies
type PolicyListResponse struct {
	Policies []PolicySummary `json:"policies"`
	Count    int             `json:"count"`
}

// ReloadResponse reports a completed policy reload
type ReloadResponse struct {
	Policies []string `json:"policies"`
	Count    int      `json:"count"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]interface{} `json:"checks,omitempty"`
}

// DecisionCounts totals decisions served since startup, by verdict
type DecisionCounts struct {
	Permit       uint64 `json:"permit"`
	Deny         uint64 `json:"deny"`
	Undetermined uint64 `json:"undetermined"`
}

// StatusResponse represents service status response
type StatusResponse struct {
	Version          string         `json:"version"`
	Uptime           string         `json:"uptime"`
	PoliciesLoaded   int            `json:"policies_loaded"`
	Decisions        DecisionCounts `json:"decisions"`
	DroppedLogEvents uint64         `json:"dropped_log_events"`
	Timestamp        time.Time      `json:"timestamp"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		return json.NewEncoder(w).Encode(data)
	}
	return nil
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// classifyError maps an evaluation error to an HTTP status and a metrics
// error kind. Unknown policies are 404, retrieval failures surface as a bad
// gateway, policy configuration problems as unprocessable.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, policy.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, attribute.ErrRetrieval):
		return http.StatusBadGateway, "retrieval"
	case errors.Is(err, types.ErrConfiguration):
		return http.StatusUnprocessableEntity, "configuration"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
