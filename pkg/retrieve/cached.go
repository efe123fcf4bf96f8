package retrieve

import (
	"context"
	"time"

	"github.com/verdict-engine/go-core/internal/cache"
	"github.com/verdict-engine/go-core/pkg/attribute"
)

// CacheConfig controls Cached.
type CacheConfig struct {
	// Capacity is the number of entries kept. Defaults to 10000.
	Capacity int
	// TTL is how long an entry stays valid. Defaults to 5 minutes.
	TTL time.Duration
	// ContextKey names the request context entry scoping cache keys, so
	// one principal's attributes are never served to another. Defaults to
	// "subject".
	ContextKey string
}

// Cached wraps fn with a TTL-bounded LRU so slow backends are consulted at
// most once per principal and key within the TTL. Lookups whose bound
// context lacks the scoping entry bypass the cache entirely. Values are
// cached, nil included; errors never are.
func Cached(fn attribute.Func, cfg CacheConfig) attribute.Func {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = "subject"
	}
	store := cache.NewLRU(cfg.Capacity, cfg.TTL)

	return func(ctx context.Context, key string, reqCtx interface{}) (interface{}, error) {
		subject, ok := contextString(reqCtx, cfg.ContextKey)
		if !ok {
			return fn(ctx, key, reqCtx)
		}

		cacheKey := subject + "\x00" + key
		if value, ok := store.Get(cacheKey); ok {
			return value, nil
		}

		value, err := fn(ctx, key, reqCtx)
		if err != nil {
			return nil, err
		}
		store.Set(cacheKey, value)
		return value, nil
	}
}
