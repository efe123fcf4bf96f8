package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucket refills the bucket at KEYS[1] by ARGV[2] tokens per second up
// to ARGV[3] and takes one if available. Runs atomically inside Redis.
// Returns {allowed, whole tokens remaining, seconds until a token is free}.
var tokenBucket = redis.NewScript(`
local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local stamp = tonumber(redis.call('HGET', KEYS[1], 'stamp'))
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])

if tokens == nil then
	tokens = capacity
	stamp = now
end

tokens = math.min(tokens + (now - stamp) * rate, capacity)

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', KEYS[1], 'tokens', tokens)
redis.call('HSET', KEYS[1], 'stamp', now)
redis.call('EXPIRE', KEYS[1], math.ceil(capacity / rate) * 2)

local wait = 0
if allowed == 0 then
	wait = math.ceil((1 - tokens) / rate)
end
return {allowed, math.floor(tokens), wait}
`)

// RedisLimiter is a Limiter sharing its buckets through Redis.
type RedisLimiter struct {
	client redis.UniversalClient
	cfg    Config
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a limiter on an existing client. The client is
// shared, never closed by the limiter.
func NewRedisLimiter(client redis.UniversalClient, cfg Config) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg.withDefaults()}
}

// Allow takes one token from the bucket for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now()
	res, err := tokenBucket.Run(ctx, l.client,
		[]string{l.cfg.KeyPrefix + key},
		float64(now.Unix())+float64(now.Nanosecond())/1e9,
		l.cfg.RPS,
		l.cfg.Burst,
	).Result()
	if err != nil {
		if l.cfg.FailOpen {
			return Result{Allowed: true, Remaining: l.cfg.Burst, Limit: l.cfg.RPS}, nil
		}
		return Result{}, fmt.Errorf("rate limit check: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return Result{}, fmt.Errorf("rate limit script returned %T", res)
	}
	allowed, _ := vals[0].(int64)
	remaining, _ := vals[1].(int64)
	wait, _ := vals[2].(int64)

	return Result{
		Allowed:    allowed == 1,
		Remaining:  int(remaining),
		RetryAfter: time.Duration(wait) * time.Second,
		Limit:      l.cfg.RPS,
	}, nil
}

// Reset drops the bucket for key, restoring its full burst.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.cfg.KeyPrefix+key).Err()
}
