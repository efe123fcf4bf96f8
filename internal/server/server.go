// Package server provides the REST API for the decision engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/verdict-engine/go-core/internal/decisionlog"
	"github.com/verdict-engine/go-core/internal/metrics"
	"github.com/verdict-engine/go-core/internal/policy"
	"github.com/verdict-engine/go-core/internal/ratelimit"
	"github.com/verdict-engine/go-core/pkg/attribute"
	"github.com/verdict-engine/go-core/pkg/engine"
)

// Server is the REST API server
type Server struct {
	engine     *engine.Engine
	store      policy.Store
	registry   *attribute.Registry
	loader     *policy.Loader
	validator  *policy.Validator
	metrics    metrics.Metrics
	decisions  decisionlog.Logger
	limiter    ratelimit.Limiter
	router     *mux.Router
	httpServer *http.Server
	logger     *zap.Logger
	config     Config
	startTime  time.Time
}

// Config configures the REST API server
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Version      string

	// DefaultPolicy is evaluated when a decision request names no policy
	DefaultPolicy string

	// Registry supplies attribute retrievers for every evaluation. Each
	// request binds its own context value to this shared registry, so the
	// registered retrievers see the request context. nil gets a fresh
	// empty registry.
	Registry *attribute.Registry

	// Metrics receives decision observations. nil disables them.
	Metrics metrics.Metrics

	// DecisionLog receives one event per decision. nil disables it.
	DecisionLog decisionlog.Logger

	// RateLimiter bounds per-client request rates on the API routes.
	// nil disables limiting.
	RateLimiter ratelimit.Limiter

	// PolicyDir enables POST /v1/policies/reload. Loader and Validator
	// default to ones sharing the engine's condition and algorithm
	// registries.
	PolicyDir string
	Loader    *policy.Loader
	Validator *policy.Validator
}

// DefaultConfig returns default REST server configuration
func DefaultConfig() Config {
	return Config{
		Addr:         ":8181",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		Version:      "1.0.0",
	}
}

// New creates a new REST API server
func New(cfg Config, eng *engine.Engine, store policy.Store, logger *zap.Logger) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if store == nil {
		return nil, fmt.Errorf("policy store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}

	registry := cfg.Registry
	if registry == nil {
		registry = attribute.NewRegistry()
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNoOpMetrics()
	}
	decisions := cfg.DecisionLog
	if decisions == nil {
		decisions = decisionlog.NewNop()
	}
	validator := cfg.Validator
	if validator == nil {
		validator = policy.NewValidator(eng.Conditions(), eng.Algorithms())
	}
	loader := cfg.Loader
	if loader == nil {
		loader = policy.NewLoader(eng.Conditions(), logger)
	}

	s := &Server{
		engine:    eng,
		store:     store,
		registry:  registry,
		loader:    loader,
		validator: validator,
		metrics:   m,
		decisions: decisions,
		limiter:   cfg.RateLimiter,
		router:    mux.NewRouter(),
		logger:    logger,
		config:    cfg,
		startTime: time.Now(),
	}

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s, nil
}

// registerRoutes registers all REST API routes
func (s *Server) registerRoutes() {
	// Apply global middleware
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.rateLimitMiddleware)

	// Health and observability endpoints
	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	s.router.Handle("/metrics", s.metrics.HTTPHandler()).Methods("GET")

	// API v1 routes
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/status", s.statusHandler).Methods("GET")

	// Decision endpoints
	v1.HandleFunc("/decision", s.decisionHandler).Methods("POST")
	v1.HandleFunc("/decision/batch", s.batchDecisionHandler).Methods("POST")

	// Policy management endpoints
	policies := v1.PathPrefix("/policies").Subrouter()
	policies.HandleFunc("", s.listPoliciesHandler).Methods("GET")
	policies.HandleFunc("/reload", s.reloadPoliciesHandler).Methods("POST")
	policies.HandleFunc("/{name}", s.getPolicyHandler).Methods("GET")
	policies.HandleFunc("/{name}", s.putPolicyHandler).Methods("PUT")
	policies.HandleFunc("/{name}", s.deletePolicyHandler).Methods("DELETE")
}

// Start starts the REST API server
func (s *Server) Start() error {
	s.logger.Info("Starting REST API server",
		zap.String("addr", s.config.Addr),
		zap.Int("policies", s.store.Len()),
	)

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the REST API server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP implements http.Handler interface for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// healthHandler handles health check requests
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]interface{})
	checks["engine"] = "ok"
	checks["policy_store"] = fmt.Sprintf("%d policies", s.store.Len())

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    checks,
	}

	WriteJSON(w, http.StatusOK, response)
}

// statusHandler handles service status requests
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	permits, denies, undetermined := s.metrics.DecisionCounts()

	response := StatusResponse{
		Version:        s.config.Version,
		Uptime:         time.Since(s.startTime).String(),
		PoliciesLoaded: s.store.Len(),
		Decisions: DecisionCounts{
			Permit:       permits,
			Deny:         denies,
			Undetermined: undetermined,
		},
		DroppedLogEvents: s.decisions.Dropped(),
		Timestamp:        time.Now(),
	}

	WriteJSON(w, http.StatusOK, response)
}
