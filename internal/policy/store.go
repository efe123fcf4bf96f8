package policy

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/verdict-engine/go-core/pkg/types"
)

// ErrNotFound is returned when a named policy is not in the store.
var ErrNotFound = errors.New("policy not found")

// Store is the policy storage interface used by the server and the watcher.
type Store interface {
	// Get retrieves a policy by name.
	Get(name string) (*types.Node, error)

	// List returns all policies sorted by name.
	List() []*types.Node

	// Names returns all policy names, sorted.
	Names() []string

	// Set adds or replaces a policy keyed by its name.
	Set(node *types.Node) error

	// Delete removes a policy by name.
	Delete(name string) error

	// Replace swaps the full policy set atomically.
	Replace(nodes []*types.Node) error

	// Len returns the number of stored policies.
	Len() int
}

// MemoryStore is an in-memory Store keyed by policy name.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]*types.Node
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory policy store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies: make(map[string]*types.Node),
	}
}

// Get retrieves a policy by name.
func (s *MemoryStore) Get(name string) (*types.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.policies[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return node, nil
}

// List returns all policies sorted by name.
func (s *MemoryStore) List() []*types.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*types.Node, 0, len(s.policies))
	for _, node := range s.policies {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return nodes
}

// Names returns all policy names, sorted.
func (s *MemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.policies))
	for name := range s.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set adds or replaces a policy keyed by its name.
func (s *MemoryStore) Set(node *types.Node) error {
	if node == nil || node.Name == "" {
		return fmt.Errorf("policy name is required: %w", types.ErrConfiguration)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.policies[node.Name] = node
	return nil
}

// Delete removes a policy by name.
func (s *MemoryStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[name]; !ok {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	delete(s.policies, name)
	return nil
}

// Replace swaps the full policy set atomically.
func (s *MemoryStore) Replace(nodes []*types.Node) error {
	policies := make(map[string]*types.Node, len(nodes))
	for _, node := range nodes {
		if node == nil || node.Name == "" {
			return fmt.Errorf("policy name is required: %w", types.ErrConfiguration)
		}
		policies[node.Name] = node
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.policies = policies
	return nil
}

// Len returns the number of stored policies.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.policies)
}
