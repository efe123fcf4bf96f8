package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verdict-engine/go-core/internal/metrics"
	"github.com/verdict-engine/go-core/internal/policy"
	"github.com/verdict-engine/go-core/internal/ratelimit"
	"github.com/verdict-engine/go-core/pkg/attribute"
	"github.com/verdict-engine/go-core/pkg/engine"
	"github.com/verdict-engine/go-core/pkg/retrieve"
	"github.com/verdict-engine/go-core/pkg/types"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *policy.MemoryStore) {
	t.Helper()

	eng, err := engine.New(engine.Config{})
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	if cfg.Registry == nil {
		registry := attribute.NewRegistry()
		err = registry.Register([]string{"grp", "req"}, retrieve.FromContext(), nil)
		require.NoError(t, err)
		cfg.Registry = registry
	}

	store := policy.NewMemoryStore()
	srv, err := New(cfg, eng, store, zap.NewNop())
	require.NoError(t, err)
	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func roleGatedPolicy(name string) *types.Node {
	return &types.Node{
		Name: name,
		Target: &types.Target{Groups: []types.AndGroup{
			{"grp:role": types.Matcher{Value: []interface{}{"admin", "pub"}}},
		}},
		Effect: types.EffectPermit,
	}
}

func effectRule(name string, effect types.Effect) *types.Node {
	return &types.Node{Name: name, Effect: effect}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	eng, err := engine.New(engine.Config{})
	require.NoError(t, err)
	defer eng.Close()

	_, err = New(Config{}, nil, policy.NewMemoryStore(), zap.NewNop())
	assert.Error(t, err)

	_, err = New(Config{}, eng, nil, zap.NewNop())
	assert.Error(t, err)

	srv, err := New(Config{}, eng, policy.NewMemoryStore(), nil)
	require.NoError(t, err)
	assert.NotNil(t, srv)
}

func TestDecision_EndToEnd(t *testing.T) {
	srv, store := newTestServer(t, Config{})
	require.NoError(t, store.Set(roleGatedPolicy("document-access")))

	t.Run("applicable target permits", func(t *testing.T) {
		w := doJSON(t, srv, "POST", "/v1/decision", DecisionRequest{
			Policy:  "document-access",
			Context: map[string]interface{}{"role": []interface{}{"admin", "pub"}},
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp DecisionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "PERMIT", resp.Verdict)
		assert.Equal(t, "document-access", resp.Policy)
		assert.NotEmpty(t, resp.RequestID)
	})

	t.Run("inapplicable target is undetermined", func(t *testing.T) {
		w := doJSON(t, srv, "POST", "/v1/decision", DecisionRequest{
			Policy:  "document-access",
			Context: map[string]interface{}{"role": []interface{}{"pub"}},
		})
		require.Equal(t, http.StatusOK, w.Code)

		var resp DecisionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "UNDETERMINED", resp.Verdict)
	})
}

func TestDecision_DefaultPolicy(t *testing.T) {
	srv, store := newTestServer(t, Config{DefaultPolicy: "fallback"})
	require.NoError(t, store.Set(effectRule("fallback", types.EffectDeny)))

	w := doJSON(t, srv, "POST", "/v1/decision", DecisionRequest{
		Context: map[string]interface{}{"role": "guest"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp DecisionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "DENY", resp.Verdict)
	assert.Equal(t, "fallback", resp.Policy)
}

func TestDecision_PolicyRequired(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	w := doJSON(t, srv, "POST", "/v1/decision", DecisionRequest{
		Context: map[string]interface{}{"role": "guest"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecision_UnknownPolicy(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	w := doJSON(t, srv, "POST", "/v1/decision", DecisionRequest{Policy: "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ghost", resp.Details["policy"])
}

func TestDecision_MalformedBody(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	req := httptest.NewRequest("POST", "/v1/decision", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecision_ConfigurationError(t *testing.T) {
	srv, store := newTestServer(t, Config{})

	// The store does not validate, so a programmatically inserted node can
	// still carry a payload violation.
	require.NoError(t, store.Set(&types.Node{
		Name:   "confused",
		Effect: types.EffectPermit,
		Rules:  []*types.Node{effectRule("extra", types.EffectDeny)},
	}))

	w := doJSON(t, srv, "POST", "/v1/decision", DecisionRequest{Policy: "confused"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestDecision_RetrievalError(t *testing.T) {
	registry := attribute.NewRegistry()
	err := registry.Register([]string{"usr"}, func(ctx context.Context, key string, reqCtx interface{}) (interface{}, error) {
		return nil, fmt.Errorf("directory unreachable")
	}, nil)
	require.NoError(t, err)

	srv, store := newTestServer(t, Config{Registry: registry})
	require.NoError(t, store.Set(&types.Node{
		Name: "needs-directory",
		Target: &types.Target{Groups: []types.AndGroup{
			{"usr:dept": types.Matcher{Value: "engineering"}},
		}},
		Effect: types.EffectPermit,
	}))

	w := doJSON(t, srv, "POST", "/v1/decision", DecisionRequest{Policy: "needs-directory"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestDecision_RequestIDEchoed(t *testing.T) {
	srv, store := newTestServer(t, Config{})
	require.NoError(t, store.Set(effectRule("open", types.EffectPermit)))

	body, err := json.Marshal(DecisionRequest{Policy: "open"})
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/v1/decision", bytes.NewReader(body))
	req.Header.Set("X-Request-ID", "req-supplied-42")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-supplied-42", w.Header().Get("X-Request-ID"))

	var resp DecisionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "req-supplied-42", resp.RequestID)
}

func TestBatchDecision(t *testing.T) {
	srv, store := newTestServer(t, Config{})
	require.NoError(t, store.Set(effectRule("always-permit", types.EffectPermit)))
	require.NoError(t, store.Set(effectRule("always-deny", types.EffectDeny)))

	w := doJSON(t, srv, "POST", "/v1/decision/batch", BatchDecisionRequest{
		Items: []DecisionRequest{
			{Policy: "always-permit"},
			{Policy: "always-deny"},
			{Policy: "always-permit"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp BatchDecisionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "PERMIT", resp.Results[0].Verdict)
	assert.Equal(t, "DENY", resp.Results[1].Verdict)
	assert.Equal(t, "PERMIT", resp.Results[2].Verdict)
	assert.Equal(t, "always-deny", resp.Results[1].Policy)
	assert.NotEmpty(t, resp.RequestID)
}

func TestBatchDecision_EmptyItems(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	w := doJSON(t, srv, "POST", "/v1/decision/batch", BatchDecisionRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchDecision_UnknownPolicy(t *testing.T) {
	srv, store := newTestServer(t, Config{})
	require.NoError(t, store.Set(effectRule("known", types.EffectPermit)))

	w := doJSON(t, srv, "POST", "/v1/decision/batch", BatchDecisionRequest{
		Items: []DecisionRequest{
			{Policy: "known"},
			{Policy: "ghost"},
		},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ghost", resp.Details["policy"])
	assert.Equal(t, float64(1), resp.Details["item"])
}

func TestPolicyCRUD(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	document := map[string]interface{}{
		"description": "Gates document access.",
		"target":      map[string]interface{}{"grp:role": "admin"},
		"rules": []interface{}{
			map[string]interface{}{"name": "allow-admins", "effect": "permit"},
		},
	}

	// Create
	w := doJSON(t, srv, "PUT", "/v1/policies/document-access", document)
	require.Equal(t, http.StatusCreated, w.Code)

	// Read back
	w = doJSON(t, srv, "GET", "/v1/policies/document-access", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var node types.Node
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &node))
	assert.Equal(t, "document-access", node.Name)
	assert.Equal(t, "Gates document access.", node.Description)
	require.Len(t, node.Rules, 1)
	assert.Equal(t, types.EffectPermit, node.Rules[0].Effect)

	// List
	w = doJSON(t, srv, "GET", "/v1/policies", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list PolicyListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "document-access", list.Policies[0].Name)
	assert.Equal(t, "policy", list.Policies[0].Kind)

	// Replace
	w = doJSON(t, srv, "PUT", "/v1/policies/document-access", document)
	assert.Equal(t, http.StatusOK, w.Code)

	// The replaced policy serves decisions
	w = doJSON(t, srv, "POST", "/v1/decision", DecisionRequest{
		Policy:  "document-access",
		Context: map[string]interface{}{"role": "admin"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var decision DecisionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	assert.Equal(t, "PERMIT", decision.Verdict)

	// Delete
	w = doJSON(t, srv, "DELETE", "/v1/policies/document-access", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, srv, "GET", "/v1/policies/document-access", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, srv, "DELETE", "/v1/policies/document-access", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutPolicy_Invalid(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	t.Run("mixed payload", func(t *testing.T) {
		w := doJSON(t, srv, "PUT", "/v1/policies/confused", map[string]interface{}{
			"effect": "permit",
			"rules": []interface{}{
				map[string]interface{}{"name": "extra", "effect": "deny"},
			},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("bad condition", func(t *testing.T) {
		w := doJSON(t, srv, "PUT", "/v1/policies/broken", map[string]interface{}{
			"condition": "context.role ===",
			"effect":    "permit",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest("PUT", "/v1/policies/garbled", bytes.NewReader([]byte("{")))
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestReloadPolicies(t *testing.T) {
	tmpDir := t.TempDir()
	err := os.WriteFile(filepath.Join(tmpDir, "api-access.yaml"), []byte(`name: api-access
rules:
  - name: allow-all
    effect: permit
`), 0600)
	require.NoError(t, err)

	srv, store := newTestServer(t, Config{PolicyDir: tmpDir})

	w := doJSON(t, srv, "POST", "/v1/policies/reload", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ReloadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, []string{"api-access"}, resp.Policies)

	_, err = store.Get("api-access")
	assert.NoError(t, err)
}

func TestReloadPolicies_Unconfigured(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	w := doJSON(t, srv, "POST", "/v1/policies/reload", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, Config{})

	w := doJSON(t, srv, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
}

func TestStatusEndpoint(t *testing.T) {
	srv, store := newTestServer(t, Config{
		Version: "test-build",
		Metrics: metrics.NewPrometheusMetrics("pdp_status_test"),
	})
	require.NoError(t, store.Set(effectRule("open", types.EffectPermit)))

	w := doJSON(t, srv, "POST", "/v1/decision", DecisionRequest{Policy: "open"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, "GET", "/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "test-build", resp.Version)
	assert.Equal(t, 1, resp.PoliciesLoaded)
	assert.Equal(t, uint64(1), resp.Decisions.Permit)
	assert.NotEmpty(t, resp.Uptime)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, store := newTestServer(t, Config{
		Metrics: metrics.NewPrometheusMetrics("pdp_rest_test"),
	})
	require.NoError(t, store.Set(effectRule("open", types.EffectPermit)))

	w := doJSON(t, srv, "POST", "/v1/decision", DecisionRequest{Policy: "open"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `pdp_rest_test_decisions_total{verdict="PERMIT"} 1`)
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
		// Disable CLIENT SETINFO for miniredis compatibility
		DisableIndentity: true,
	})
	t.Cleanup(func() {
		client.Close()
	})

	limiter := ratelimit.NewRedisLimiter(client, ratelimit.Config{RPS: 1, Burst: 2})
	srv, store := newTestServer(t, Config{RateLimiter: limiter})
	require.NoError(t, store.Set(effectRule("open", types.EffectPermit)))

	// httptest stamps every request with the same RemoteAddr, so they all
	// draw from one bucket.
	w := doJSON(t, srv, "POST", "/v1/decision", DecisionRequest{Policy: "open"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	w = doJSON(t, srv, "POST", "/v1/decision", DecisionRequest{Policy: "open"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, "POST", "/v1/decision", DecisionRequest{Policy: "open"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rate_limited", resp.Error)

	// Health and metrics probes bypass the bucket.
	w = doJSON(t, srv, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
