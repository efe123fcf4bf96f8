package attribute

import (
	"context"
	"fmt"
	"strings"

	"github.com/verdict-engine/go-core/pkg/types"
)

// Context is one scope in the hierarchical attribute namespace. It owns a
// registry of sources, the request context value handed to every retriever
// invoked through it, and a non-owning link to its parent scope for
// fallback. Contexts are cheap: build one per evaluation, discard it with
// the verdict.
//
// Get never writes shared state, so any number of lookups may run
// concurrently on one Context.
type Context struct {
	registry *Registry
	value    interface{}
	parent   *Context
}

var _ types.AttributeSource = (*Context)(nil)

// NewContext binds a registry to a request context value, forming the root
// of a scope chain. A nil registry gets a fresh empty one.
func NewContext(reg *Registry, value interface{}) *Context {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Context{registry: reg, value: value}
}

// CreateChild derives a scope with its own empty registry that falls back to
// this node, binding value as the request context passed to retrievers
// invoked through the child.
func (c *Context) CreateChild(value interface{}) *Context {
	return &Context{registry: NewRegistry(), value: value, parent: c}
}

// Register binds fn under the given sources in this scope's own registry,
// visible to this scope and its descendants but never to ancestors.
func (c *Context) Register(sources []string, fn Func, opts *Options) error {
	return c.registry.Register(sources, fn, opts)
}

// RegisterAsync is Register for the callback retrieval shape
func (c *Context) RegisterAsync(sources []string, fn AsyncFunc, opts *Options) error {
	return c.registry.RegisterAsync(sources, fn, opts)
}

// Value returns the bound request context value
func (c *Context) Value() interface{} {
	return c.value
}

// Registry returns the scope's own registry
func (c *Context) Registry() *Registry {
	return c.registry
}

// Get resolves a "source:key" reference. The scope's own registry is
// consulted first; if it does not know the source, the lookup falls back
// through the parent chain, each ancestor binding its own context value.
// Absence, meaning no ancestor knows the source, is (nil, false, nil) and
// never an error. Retrieval failures propagate.
func (c *Context) Get(ctx context.Context, reference string) (interface{}, bool, error) {
	source, key, err := SplitReference(reference)
	if err != nil {
		return nil, false, err
	}
	return c.resolve(ctx, source, key)
}

func (c *Context) resolve(ctx context.Context, source, key string) (interface{}, bool, error) {
	value, found, err := c.registry.Resolve(ctx, source, key, c.value)
	if err != nil {
		return nil, false, err
	}
	if found {
		return value, true, nil
	}
	if c.parent != nil {
		return c.parent.resolve(ctx, source, key)
	}
	return nil, false, nil
}

// SplitReference splits an attribute reference on its first separator. Keys
// may contain further separators; a reference without one is malformed.
func SplitReference(reference string) (source, key string, err error) {
	idx := strings.Index(reference, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("attribute reference %q has no source:key separator: %w", reference, types.ErrConfiguration)
	}
	return reference[:idx], reference[idx+1:], nil
}
