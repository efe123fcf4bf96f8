package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/verdict-engine/go-core/internal/policy"
	"github.com/verdict-engine/go-core/pkg/types"
)

// listPoliciesHandler handles GET /v1/policies
func (s *Server) listPoliciesHandler(w http.ResponseWriter, r *http.Request) {
	nodes := s.store.List()

	summaries := make([]PolicySummary, 0, len(nodes))
	for _, node := range nodes {
		kind, err := node.Kind()
		if err != nil {
			// Stored policies are validated, so this only guards against
			// programmatic misuse of the store.
			continue
		}
		summaries = append(summaries, PolicySummary{
			Name:        node.Name,
			Description: node.Description,
			Kind:        kind.String(),
		})
	}

	WriteJSON(w, http.StatusOK, PolicyListResponse{
		Policies: summaries,
		Count:    len(summaries),
	})
}

// getPolicyHandler handles GET /v1/policies/{name}
func (s *Server) getPolicyHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	node, err := s.store.Get(name)
	if err != nil {
		WriteError(w, http.StatusNotFound, "Policy not found", map[string]interface{}{
			"policy": name,
		})
		return
	}

	WriteJSON(w, http.StatusOK, node)
}

// putPolicyHandler handles PUT /v1/policies/{name}. The document is upserted:
// 201 on create, 200 on replace.
func (s *Server) putPolicyHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var node types.Node
	if err := json.NewDecoder(r.Body).Decode(&node); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	// The URL names the policy; the document body does not get a vote.
	node.Name = name

	if err := s.validator.Validate(&node); err != nil {
		s.logger.Error("Policy validation failed",
			zap.String("policy", name),
			zap.Error(err),
		)
		WriteError(w, http.StatusUnprocessableEntity, "Invalid policy", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if warnings := s.validator.Warnings(&node); len(warnings) > 0 {
		s.logger.Warn("Policy stored with warnings",
			zap.String("policy", name),
			zap.Strings("warnings", warnings),
		)
	}

	status := http.StatusOK
	if _, err := s.store.Get(name); errors.Is(err, policy.ErrNotFound) {
		status = http.StatusCreated
	}

	if err := s.store.Set(&node); err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to store policy", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	s.metrics.SetPoliciesLoaded(s.store.Len())
	s.logger.Info("Policy stored",
		zap.String("policy", name),
	)

	WriteJSON(w, status, node)
}

// deletePolicyHandler handles DELETE /v1/policies/{name}
func (s *Server) deletePolicyHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := s.store.Delete(name); err != nil {
		WriteError(w, http.StatusNotFound, "Policy not found", map[string]interface{}{
			"policy": name,
		})
		return
	}

	s.metrics.SetPoliciesLoaded(s.store.Len())
	s.logger.Info("Policy deleted",
		zap.String("policy", name),
	)

	w.WriteHeader(http.StatusNoContent)
}

// reloadPoliciesHandler handles POST /v1/policies/reload. The full policy set
// is re-read from the configured directory and swapped in atomically.
func (s *Server) reloadPoliciesHandler(w http.ResponseWriter, r *http.Request) {
	if s.config.PolicyDir == "" {
		WriteError(w, http.StatusBadRequest, "No policy directory configured", nil)
		return
	}

	names, err := policy.ReloadDirectory(s.config.PolicyDir, s.loader, s.validator, s.store)
	if err != nil {
		s.metrics.RecordReload(false)
		s.logger.Error("Policy reload failed",
			zap.String("dir", s.config.PolicyDir),
			zap.Error(err),
		)
		status, _ := classifyError(err)
		WriteError(w, status, "Reload failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	s.metrics.RecordReload(true)
	s.metrics.SetPoliciesLoaded(s.store.Len())
	s.logger.Info("Policies reloaded",
		zap.Int("count", len(names)),
	)

	WriteJSON(w, http.StatusOK, ReloadResponse{
		Policies: names,
		Count:    len(names),
	})
}
