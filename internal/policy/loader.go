// Package policy provides policy document loading, validation, storage and
// hot reload.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/verdict-engine/go-core/internal/condition"
	"github.com/verdict-engine/go-core/pkg/types"
)

// Loader loads and parses policy documents from disk.
type Loader struct {
	logger     *zap.Logger
	conditions *condition.Evaluator
}

// NewLoader creates a policy loader. conditions is optional; when set,
// every node condition is precompiled at load time so a bad expression
// fails before it ever sees traffic.
func NewLoader(conditions *condition.Evaluator, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Loader{
		logger:     logger,
		conditions: conditions,
	}
}

// LoadFromDirectory loads all policy documents in a directory. Files that
// fail to parse are skipped with a warning so one broken document does not
// take the rest of the directory down.
func (l *Loader) LoadFromDirectory(path string) ([]*types.Node, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var nodes []*types.Node
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}

		filePath := filepath.Join(path, entry.Name())
		node, err := l.LoadFromFile(filePath)
		if err != nil {
			l.logger.Warn("Failed to load policy file",
				zap.String("file", filePath),
				zap.Error(err),
			)
			continue
		}

		nodes = append(nodes, node)
	}

	return nodes, nil
}

// LoadFromFile loads a single policy document. An unnamed root takes the
// file stem as its name.
func (l *Loader) LoadFromFile(filePath string) (*types.Node, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	node := &types.Node{}

	// yaml.Unmarshal also parses the JSON subset, so .json documents take
	// the same path.
	if err := yaml.Unmarshal(content, node); err != nil {
		return nil, fmt.Errorf("failed to parse policy document: %w", err)
	}

	if node.Name == "" {
		base := filepath.Base(filePath)
		node.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	if err := l.compileConditions(node); err != nil {
		return nil, fmt.Errorf("failed to compile conditions: %w", err)
	}

	return node, nil
}

// compileConditions precompiles every condition in the tree.
func (l *Loader) compileConditions(root *types.Node) error {
	if l.conditions == nil {
		return nil
	}

	return walk(root, func(n *types.Node) error {
		if n.Condition == "" {
			return nil
		}
		if err := l.conditions.Check(n.Condition); err != nil {
			return fmt.Errorf("node %s: %w", n.Label(), err)
		}
		return nil
	})
}

// ClearConditionCache drops compiled condition programs. Reloads call it so
// programs for retired policies do not accumulate.
func (l *Loader) ClearConditionCache() {
	if l.conditions != nil {
		l.conditions.ClearCache()
	}
}

// walk visits node and all of its descendants depth-first.
func walk(node *types.Node, visit func(*types.Node) error) error {
	if node == nil {
		return nil
	}
	if err := visit(node); err != nil {
		return err
	}
	for _, child := range node.Policies {
		if err := walk(child, visit); err != nil {
			return err
		}
	}
	for _, child := range node.Rules {
		if err := walk(child, visit); err != nil {
			return err
		}
	}
	return nil
}
