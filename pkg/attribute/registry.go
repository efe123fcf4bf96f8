package attribute

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/verdict-engine/go-core/pkg/types"
)

// entry is one registered source. The override flag is recorded for
// diagnostics only; it gates nothing at lookup time.
type entry struct {
	fn       Func
	override bool
}

// Registry maps source names to retrieval functions. It is safe for
// concurrent use; registration is expected during setup, lookups run under a
// read lock once evaluation traffic starts.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]entry
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]entry)}
}

// Register binds fn under every name in sources. The batch is atomic: if any
// name is already taken and opts does not set Override, nothing registers
// and the returned error names the colliding source. With Override, existing
// registrations are silently replaced.
func (r *Registry) Register(sources []string, fn Func, opts *Options) error {
	if fn == nil {
		return fmt.Errorf("register: nil retrieval function: %w", types.ErrConfiguration)
	}
	if len(sources) == 0 {
		return fmt.Errorf("register: no source names given: %w", types.ErrConfiguration)
	}
	override := opts != nil && opts.Override

	r.mu.Lock()
	defer r.mu.Unlock()
	if !override {
		for _, name := range sources {
			if _, taken := r.sources[name]; taken {
				return fmt.Errorf("source %q: %w", name, ErrCollision)
			}
		}
	}
	for _, name := range sources {
		r.sources[name] = entry{fn: fn, override: override}
	}
	return nil
}

// RegisterAsync binds a callback-style function under the given sources,
// normalized to the synchronous contract. Registration semantics match
// Register.
func (r *Registry) RegisterAsync(sources []string, fn AsyncFunc, opts *Options) error {
	if fn == nil {
		return fmt.Errorf("register: nil retrieval function: %w", types.ErrConfiguration)
	}
	return r.Register(sources, adaptAsync(fn), opts)
}

// Resolve invokes the function registered for source with the given key and
// request context value. An unregistered source resolves as not found, never
// an error, so scope chains can keep falling back. Function errors and
// panics come back wrapped in ErrRetrieval.
func (r *Registry) Resolve(ctx context.Context, source, key string, reqCtx interface{}) (interface{}, bool, error) {
	r.mu.RLock()
	e, ok := r.sources[source]
	r.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	value, err := safeInvoke(ctx, e.fn, key, reqCtx)
	if err != nil {
		return nil, false, fmt.Errorf("source %q key %q: %w: %w", source, key, ErrRetrieval, err)
	}
	return value, true, nil
}

// Sources returns the registered source names, sorted
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered sources
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// safeInvoke shields resolution from panicking retrievers
func safeInvoke(ctx context.Context, fn Func, key string, reqCtx interface{}) (value interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			value = nil
			err = fmt.Errorf("retriever panicked: %v", p)
		}
	}()
	return fn(ctx, key, reqCtx)
}
