package combine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/verdict-engine/go-core/pkg/types"
)

// Registry maps combining-algorithm names to implementations. Like attribute
// registries it is read-mostly: register custom algorithms during setup,
// look them up under a read lock during evaluation.
type Registry struct {
	mu         sync.RWMutex
	algorithms map[string]Algorithm
}

// NewRegistry returns a registry pre-loaded with the built-ins
func NewRegistry() *Registry {
	return &Registry{algorithms: map[string]Algorithm{
		PermitOverrides: Func(permitOverrides),
		DenyOverrides:   Func(denyOverrides),
	}}
}

// Register adds a named algorithm. Existing names, the built-ins included,
// are only replaced when override is set.
func (r *Registry) Register(name string, alg Algorithm, override bool) error {
	if name == "" || alg == nil {
		return fmt.Errorf("combining algorithm needs a name and an implementation: %w", types.ErrConfiguration)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.algorithms[name]; taken && !override {
		return fmt.Errorf("combining algorithm %q already registered: %w", name, types.ErrConfiguration)
	}
	r.algorithms[name] = alg
	return nil
}

// Lookup resolves a name to its algorithm
func (r *Registry) Lookup(name string) (Algorithm, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	alg, ok := r.algorithms[name]
	return alg, ok
}

// Names returns the registered algorithm names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.algorithms))
	for name := range r.algorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
