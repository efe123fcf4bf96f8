// Package retrieve provides ready-made attribute retrieval functions for
// common attribute backends. Each constructor returns an attribute.Func
// suitable for Registry.Register.
package retrieve

import (
	"context"

	"github.com/verdict-engine/go-core/pkg/attribute"
)

// FromContext returns a retriever reading attribute values out of the
// request context bound to the evaluation scope. The bound value must be a
// map[string]interface{}; anything else resolves to nil.
func FromContext() attribute.Func {
	return func(ctx context.Context, key string, reqCtx interface{}) (interface{}, error) {
		m, ok := reqCtx.(map[string]interface{})
		if !ok {
			return nil, nil
		}
		return m[key], nil
	}
}

// Map returns a retriever serving values from a fixed map. Useful for
// deployment-static attributes and tests.
func Map(values map[string]interface{}) attribute.Func {
	return func(ctx context.Context, key string, reqCtx interface{}) (interface{}, error) {
		return values[key], nil
	}
}

// contextString extracts a non-empty string entry from the bound request
// context.
func contextString(reqCtx interface{}, key string) (string, bool) {
	m, ok := reqCtx.(map[string]interface{})
	if !ok {
		return "", false
	}
	s, ok := m[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
