package retrieve

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/verdict-engine/go-core/pkg/attribute"
)

// RedisConfig configures the Redis hash retriever.
type RedisConfig struct {
	// KeyPrefix is prepended to the subject to form the hash key.
	KeyPrefix string
	// ContextKey names the request context entry holding the subject.
	// Defaults to "subject".
	ContextKey string
}

// Redis returns a retriever reading attributes from Redis hashes. The hash
// key is cfg.KeyPrefix plus the subject found at cfg.ContextKey in the
// request context; the attribute key selects the hash field. Field values
// are JSON-decoded when possible and returned as raw strings otherwise. A
// missing subject or field resolves to nil.
func Redis(client redis.UniversalClient, cfg RedisConfig) attribute.Func {
	if cfg.ContextKey == "" {
		cfg.ContextKey = "subject"
	}

	return func(ctx context.Context, key string, reqCtx interface{}) (interface{}, error) {
		subject, ok := contextString(reqCtx, cfg.ContextKey)
		if !ok {
			return nil, nil
		}

		hashKey := cfg.KeyPrefix + subject
		raw, err := client.HGet(ctx, hashKey, key).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("redis HGET %q field %q: %w", hashKey, key, err)
		}

		var decoded interface{}
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return raw, nil
		}
		return decoded, nil
	}
}
