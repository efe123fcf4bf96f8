// Package attribute implements the retrieval subsystem: a registry of named
// data sources and the hierarchical context scopes evaluation reads through.
//
// A Registry maps source names ("usr", "doc", "grp") to retrieval functions.
// A Context binds a registry to one request's context value and, through
// CreateChild, forms a scope chain: a child resolves references against its
// own registry first and falls back to its ancestors, so request-scoped
// sources can shadow or extend application-wide ones.
package attribute

import (
	"context"
	"errors"
)

var (
	// ErrCollision reports a source name registered twice without override.
	// The error message names the colliding source.
	ErrCollision = errors.New("attribute source already registered")

	// ErrRetrieval wraps failures coming out of retrieval functions,
	// including captured panics
	ErrRetrieval = errors.New("attribute retrieval failed")
)

// Func is the synchronous retrieval shape: fetch the value of key from the
// source this function is registered under. reqCtx is the context value
// bound to the scope the lookup runs through; ctx carries cancellation for
// retrievers that block on I/O.
type Func func(ctx context.Context, key string, reqCtx interface{}) (interface{}, error)

// AsyncFunc is the callback retrieval shape for sources that complete out of
// band. Implementations must call done exactly once with the value or the
// error; extra calls are ignored. A panic before done fires is captured as a
// retrieval failure, never a crash.
type AsyncFunc func(ctx context.Context, key string, reqCtx interface{}, done func(interface{}, error))

// Options control registration behavior
type Options struct {
	// Override replaces existing registrations instead of failing the batch
	Override bool
}
