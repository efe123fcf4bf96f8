package policy

import "fmt"

// ReloadDirectory loads every policy document under dir, validates the set
// and swaps it into store. Nothing is replaced unless all documents pass, so
// a broken edit leaves the previous policies serving. Returns the names of
// the loaded policies.
func ReloadDirectory(dir string, loader *Loader, validator *Validator, store Store) ([]string, error) {
	// Compiled conditions may belong to deleted or rewritten documents.
	loader.ClearConditionCache()

	nodes, err := loader.LoadFromDirectory(dir)
	if err != nil {
		return nil, err
	}

	// The loader already compiled every condition, so structural checks are
	// all that is left before the swap.
	if validator == nil {
		validator = NewValidator(nil, nil)
	}
	for _, node := range nodes {
		if err := validator.Validate(node); err != nil {
			return nil, fmt.Errorf("policy %q: %w", node.Name, err)
		}
	}

	if err := store.Replace(nodes); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(nodes))
	for _, node := range nodes {
		names = append(names, node.Name)
	}
	return names, nil
}
