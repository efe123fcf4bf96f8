// Package ratelimit enforces per-client request budgets for the decision
// endpoints, backed by a token bucket kept in Redis so every replica of the
// server draws from the same budget.
package ratelimit

import (
	"context"
	"time"
)

// Limiter answers whether one more request fits the client's budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Result is the outcome of one budget check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// Remaining is the number of whole tokens left in the bucket.
	Remaining int
	// RetryAfter is how long the client should wait before retrying a
	// refused request. Zero when Allowed.
	RetryAfter time.Duration
	// Limit is the configured steady-state rate, for response headers.
	Limit int
}

// Config holds limiter settings.
type Config struct {
	// RPS is the steady-state refill rate in tokens per second.
	// Defaults to 100.
	RPS int
	// Burst is the bucket capacity. Defaults to 2*RPS.
	Burst int
	// KeyPrefix namespaces bucket keys in Redis. Defaults to "ratelimit:".
	KeyPrefix string
	// FailOpen admits requests when Redis is unreachable instead of
	// refusing them.
	FailOpen bool
}

func (c Config) withDefaults() Config {
	if c.RPS <= 0 {
		c.RPS = 100
	}
	if c.Burst <= 0 {
		c.Burst = 2 * c.RPS
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "ratelimit:"
	}
	return c
}
