package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/verdict-engine/go-core/internal/decisionlog"
	"github.com/verdict-engine/go-core/pkg/attribute"
	"github.com/verdict-engine/go-core/pkg/engine"
)

// decisionHandler handles POST /v1/decision
func (s *Server) decisionHandler(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncActiveRequests()
	defer s.metrics.DecActiveRequests()

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	name := req.Policy
	if name == "" {
		name = s.config.DefaultPolicy
	}
	if name == "" {
		WriteError(w, http.StatusBadRequest, "policy is required", nil)
		return
	}

	node, err := s.store.Get(name)
	if err != nil {
		s.metrics.RecordEvaluationError("not_found")
		WriteError(w, http.StatusNotFound, "Policy not found", map[string]interface{}{
			"policy": name,
		})
		return
	}

	requestID := RequestID(r.Context())
	scope := attribute.NewContext(s.registry, req.Context)

	start := time.Now()
	verdict, err := s.engine.EvaluatePolicy(r.Context(), node, scope)
	elapsed := time.Since(start)

	if err != nil {
		status, kind := classifyError(err)
		s.metrics.RecordEvaluationError(kind)
		s.decisions.Log(&decisionlog.Event{
			RequestID:  requestID,
			Policy:     name,
			Verdict:    verdict.String(),
			DurationUs: elapsed.Microseconds(),
			Context:    req.Context,
			Error:      err.Error(),
		})
		s.logger.Error("Decision evaluation failed",
			zap.String("request_id", requestID),
			zap.String("policy", name),
			zap.Error(err),
		)
		WriteError(w, status, "Evaluation failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	s.metrics.RecordDecision(verdict.String(), elapsed)
	s.decisions.Log(&decisionlog.Event{
		RequestID:  requestID,
		Policy:     name,
		Verdict:    verdict.String(),
		DurationUs: elapsed.Microseconds(),
		Context:    req.Context,
	})

	WriteJSON(w, http.StatusOK, DecisionResponse{
		RequestID:    requestID,
		Verdict:      verdict.String(),
		Policy:       name,
		EvaluationUs: elapsed.Microseconds(),
	})
}

// batchDecisionHandler handles POST /v1/decision/batch. Items run
// concurrently on the engine's worker pool; the first failing item fails the
// whole batch.
func (s *Server) batchDecisionHandler(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncActiveRequests()
	defer s.metrics.DecActiveRequests()

	var req BatchDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if len(req.Items) == 0 {
		WriteError(w, http.StatusBadRequest, "items array cannot be empty", nil)
		return
	}

	items := make([]engine.BatchItem, len(req.Items))
	names := make([]string, len(req.Items))
	for i, item := range req.Items {
		name := item.Policy
		if name == "" {
			name = s.config.DefaultPolicy
		}
		if name == "" {
			WriteError(w, http.StatusBadRequest, "policy is required", map[string]interface{}{
				"item": i,
			})
			return
		}

		node, err := s.store.Get(name)
		if err != nil {
			s.metrics.RecordEvaluationError("not_found")
			WriteError(w, http.StatusNotFound, "Policy not found", map[string]interface{}{
				"policy": name,
				"item":   i,
			})
			return
		}

		names[i] = name
		items[i] = engine.BatchItem{
			Node:  node,
			Scope: attribute.NewContext(s.registry, item.Context),
		}
	}

	requestID := RequestID(r.Context())

	start := time.Now()
	verdicts, err := s.engine.EvaluateBatch(r.Context(), items)
	elapsed := time.Since(start)

	if err != nil {
		status, kind := classifyError(err)
		s.metrics.RecordEvaluationError(kind)
		s.logger.Error("Batch evaluation failed",
			zap.String("request_id", requestID),
			zap.Int("items", len(req.Items)),
			zap.Error(err),
		)
		WriteError(w, status, "Evaluation failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	// Attribute the batch latency evenly across its items.
	perItem := elapsed / time.Duration(len(verdicts))

	results := make([]BatchResult, len(verdicts))
	for i, verdict := range verdicts {
		s.metrics.RecordDecision(verdict.String(), perItem)
		s.decisions.Log(&decisionlog.Event{
			RequestID:  requestID,
			Policy:     names[i],
			Verdict:    verdict.String(),
			DurationUs: perItem.Microseconds(),
			Context:    req.Items[i].Context,
		})
		results[i] = BatchResult{
			Policy:  names[i],
			Verdict: verdict.String(),
		}
	}

	WriteJSON(w, http.StatusOK, BatchDecisionResponse{
		RequestID:    requestID,
		Results:      results,
		EvaluationUs: elapsed.Microseconds(),
	})
}
