// Package main provides the entry point for the policy decision server
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/verdict-engine/go-core/internal/decisionlog"
	"github.com/verdict-engine/go-core/internal/metrics"
	"github.com/verdict-engine/go-core/internal/policy"
	"github.com/verdict-engine/go-core/internal/ratelimit"
	"github.com/verdict-engine/go-core/internal/server"
	"github.com/verdict-engine/go-core/pkg/attribute"
	"github.com/verdict-engine/go-core/pkg/engine"
	"github.com/verdict-engine/go-core/pkg/retrieve"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Parse command line flags
	var (
		addr            = flag.String("addr", ":8181", "HTTP listen address")
		policyDir       = flag.String("policy-dir", "", "Directory to load policies from")
		defaultPolicy   = flag.String("default-policy", "", "Policy evaluated when a request names none")
		watch           = flag.Bool("watch", false, "Reload policies when files change")
		workers         = flag.Int("workers", 16, "Number of parallel workers for batch evaluation")
		logLevel        = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		logFormat       = flag.String("log-format", "json", "Log format (json, console)")
		decisionLog     = flag.String("decision-log", "off", "Decision log output (off, stdout, file)")
		decisionLogFile = flag.String("decision-log-file", "decisions.log", "Decision log file path")
		contextSources  = flag.String("context-sources", "req,grp", "Comma-separated sources served from the request context")
		redisAddr       = flag.String("redis-addr", "", "Redis address for attribute retrieval and rate limiting")
		redisSource     = flag.String("redis-source", "usr", "Source name served from Redis (empty disables)")
		redisKeyPrefix  = flag.String("redis-key-prefix", "attrs:", "Redis hash key prefix")
		attrCacheTTL    = flag.Duration("attr-cache-ttl", 0, "Cache Redis and PostgreSQL attribute lookups for this long (0 disables)")
		attrCacheSize   = flag.Int("attr-cache-size", 10000, "Entries kept per attribute cache")
		rateLimitRPS    = flag.Int("rate-limit-rps", 0, "Per-client requests per second (0 disables, requires -redis-addr)")
		rateLimitBurst  = flag.Int("rate-limit-burst", 0, "Per-client burst capacity (defaults to twice the rate)")
		rateLimitOpen   = flag.Bool("rate-limit-fail-open", true, "Admit requests when the rate limit backend is unreachable")
		jwtSource       = flag.String("jwt-source", "", "Source name serving JWT claims")
		jwtSecret       = flag.String("jwt-secret", "", "HS256 secret for JWT verification")
		postgresDSN     = flag.String("postgres-dsn", "", "PostgreSQL DSN for attribute retrieval")
		postgresSource  = flag.String("postgres-source", "db", "Source name served from PostgreSQL")
		postgresQuery   = flag.String("postgres-query", "SELECT value FROM attributes WHERE subject = $1 AND key = $2", "Single-column attribute query")
		showVersion     = flag.Bool("version", false, "Show version information")
		gracefulTimeout = flag.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("pdp-server %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	// Initialize logger
	logger, err := initLogger(*logLevel, *logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting policy decision server",
		zap.String("version", Version),
		zap.String("addr", *addr),
	)

	// Initialize decision engine
	eng, err := engine.New(engine.Config{
		Workers: *workers,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("Failed to create engine", zap.Error(err))
	}

	loader := policy.NewLoader(eng.Conditions(), logger)
	validator := policy.NewValidator(eng.Conditions(), eng.Algorithms())

	// Initialize policy store
	store := policy.NewMemoryStore()
	if *policyDir != "" {
		names, err := policy.ReloadDirectory(*policyDir, loader, validator, store)
		if err != nil {
			logger.Fatal("Failed to load policies", zap.Error(err))
		}
		logger.Info("Policies loaded",
			zap.String("dir", *policyDir),
			zap.Int("count", len(names)),
		)
	}

	// Initialize metrics
	m := metrics.NewPrometheusMetrics("pdp")
	m.SetPoliciesLoaded(store.Len())

	// Initialize decision logger
	decisions, err := newDecisionLogger(*decisionLog, *decisionLogFile)
	if err != nil {
		logger.Fatal("Failed to create decision logger", zap.Error(err))
	}

	// Wire attribute sources
	registry := attribute.NewRegistry()

	if sources := splitSources(*contextSources); len(sources) > 0 {
		if err := registry.Register(sources, retrieve.FromContext(), nil); err != nil {
			logger.Fatal("Failed to register context sources", zap.Error(err))
		}
		logger.Info("Context attribute sources registered", zap.Strings("sources", sources))
	}

	var redisClient *redis.Client
	if *redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer redisClient.Close()
	}

	if redisClient != nil && *redisSource != "" {
		fn := retrieve.Redis(redisClient, retrieve.RedisConfig{KeyPrefix: *redisKeyPrefix})
		if *attrCacheTTL > 0 {
			fn = retrieve.Cached(fn, retrieve.CacheConfig{
				Capacity: *attrCacheSize,
				TTL:      *attrCacheTTL,
			})
		}
		if err := registry.Register([]string{*redisSource}, fn, nil); err != nil {
			logger.Fatal("Failed to register Redis source", zap.Error(err))
		}
		logger.Info("Redis attribute source registered",
			zap.String("source", *redisSource),
			zap.String("addr", *redisAddr),
			zap.Bool("cached", *attrCacheTTL > 0),
		)
	}

	if *jwtSource != "" {
		fn, err := retrieve.JWT(retrieve.JWTConfig{Secret: *jwtSecret})
		if err != nil {
			logger.Fatal("Failed to create JWT retriever", zap.Error(err))
		}
		if err := registry.Register([]string{*jwtSource}, fn, nil); err != nil {
			logger.Fatal("Failed to register JWT source", zap.Error(err))
		}
		logger.Info("JWT attribute source registered", zap.String("source", *jwtSource))
	}

	if *postgresDSN != "" {
		db, err := sql.Open("postgres", *postgresDSN)
		if err != nil {
			logger.Fatal("Failed to open PostgreSQL", zap.Error(err))
		}
		defer db.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			cancel()
			logger.Fatal("Failed to reach PostgreSQL", zap.Error(err))
		}
		cancel()

		fn, err := retrieve.SQL(db, retrieve.SQLConfig{Query: *postgresQuery})
		if err != nil {
			logger.Fatal("Failed to create PostgreSQL retriever", zap.Error(err))
		}
		if *attrCacheTTL > 0 {
			fn = retrieve.Cached(fn, retrieve.CacheConfig{
				Capacity: *attrCacheSize,
				TTL:      *attrCacheTTL,
			})
		}
		if err := registry.Register([]string{*postgresSource}, fn, nil); err != nil {
			logger.Fatal("Failed to register PostgreSQL source", zap.Error(err))
		}
		logger.Info("PostgreSQL attribute source registered",
			zap.String("source", *postgresSource),
			zap.Bool("cached", *attrCacheTTL > 0),
		)
	}

	// Rate limiting shares the Redis client with attribute retrieval
	var limiter ratelimit.Limiter
	if *rateLimitRPS > 0 {
		if redisClient == nil {
			logger.Fatal("Rate limiting requires -redis-addr")
		}
		limiter = ratelimit.NewRedisLimiter(redisClient, ratelimit.Config{
			RPS:      *rateLimitRPS,
			Burst:    *rateLimitBurst,
			FailOpen: *rateLimitOpen,
		})
		logger.Info("Rate limiting enabled",
			zap.Int("rps", *rateLimitRPS),
			zap.Bool("fail_open", *rateLimitOpen),
		)
	}

	// Initialize REST server
	srv, err := server.New(server.Config{
		Addr:          *addr,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		Version:       Version,
		DefaultPolicy: *defaultPolicy,
		Registry:      registry,
		Metrics:       m,
		DecisionLog:   decisions,
		RateLimiter:   limiter,
		PolicyDir:     *policyDir,
		Loader:        loader,
		Validator:     validator,
	}, eng, store, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	// Watch the policy directory if requested
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()

	var watcher *policy.Watcher
	if *watch && *policyDir != "" {
		watcher, err = policy.NewWatcher(*policyDir, store, loader, logger)
		if err != nil {
			logger.Fatal("Failed to create policy watcher", zap.Error(err))
		}
		if err := watcher.Watch(watchCtx); err != nil {
			logger.Fatal("Failed to start policy watcher", zap.Error(err))
		}

		go func() {
			for event := range watcher.Events() {
				if event.Err != nil {
					m.RecordReload(false)
					continue
				}
				m.RecordReload(true)
				m.SetPoliciesLoaded(store.Len())
			}
		}()
	}

	// Channels for error handling
	errChan := make(chan error, 1)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start REST server
	go func() {
		errChan <- srv.Start()
	}()

	// Wait for shutdown signal or error
	select {
	case err := <-errChan:
		if err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), *gracefulTimeout)
		defer cancel()

		if watcher != nil {
			if err := watcher.Stop(); err != nil {
				logger.Error("Policy watcher stop failed", zap.Error(err))
			}
		}
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown failed", zap.Error(err))
		}
		eng.Close()
		if err := decisions.Close(); err != nil {
			logger.Error("Decision log close failed", zap.Error(err))
		}
	}

	logger.Info("Server stopped successfully")
}

// initLogger initializes the zap logger
func initLogger(level, format string) (*zap.Logger, error) {
	// Parse log level
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	// Build config
	var config zap.Config
	if format == "console" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	return config.Build()
}

// newDecisionLogger builds the decision logger selected by the flags
func newDecisionLogger(output, filePath string) (decisionlog.Logger, error) {
	switch output {
	case "off", "":
		return decisionlog.NewNop(), nil
	case "stdout":
		cfg := decisionlog.DefaultConfig()
		return decisionlog.New(cfg)
	case "file":
		cfg := decisionlog.DefaultConfig()
		cfg.Type = "file"
		cfg.FilePath = filePath
		return decisionlog.New(cfg)
	default:
		return nil, fmt.Errorf("unknown decision log output %q (must be off, stdout or file)", output)
	}
}

// splitSources parses the comma-separated source list flag
func splitSources(csv string) []string {
	var sources []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}
	return sources
}
