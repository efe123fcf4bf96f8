package policy

import (
	"fmt"
	"regexp"

	"github.com/verdict-engine/go-core/internal/condition"
	"github.com/verdict-engine/go-core/pkg/attribute"
	"github.com/verdict-engine/go-core/pkg/combine"
	"github.com/verdict-engine/go-core/pkg/types"
)

// Validator checks policy trees for structural problems before they reach
// the engine.
type Validator struct {
	conditions *condition.Evaluator
	algorithms *combine.Registry
}

// NewValidator creates a policy validator. Both collaborators are optional:
// with conditions set, node conditions must compile; with algorithms set,
// named apply values must resolve to a registered algorithm.
func NewValidator(conditions *condition.Evaluator, algorithms *combine.Registry) *Validator {
	return &Validator{
		conditions: conditions,
		algorithms: algorithms,
	}
}

// Validate checks node and all of its descendants.
func (v *Validator) Validate(node *types.Node) error {
	if node == nil {
		return fmt.Errorf("nil policy node: %w", types.ErrConfiguration)
	}
	return walk(node, v.validateNode)
}

func (v *Validator) validateNode(node *types.Node) error {
	kind, err := node.Kind()
	if err != nil {
		return err
	}

	if kind == types.KindRule {
		if _, err := node.Effect.Verdict(); err != nil {
			return fmt.Errorf("rule %s: %w", node.Label(), err)
		}
	} else if v.algorithms != nil && node.ApplyFunc == nil && node.Apply != "" {
		if _, ok := v.algorithms.Lookup(node.Apply); !ok {
			return fmt.Errorf("%s %s: unknown combining algorithm %q: %w",
				kind, node.Label(), node.Apply, types.ErrConfiguration)
		}
	}

	if err := validateTarget(node.Target); err != nil {
		return fmt.Errorf("%s %s: %w", kind, node.Label(), err)
	}

	if node.Condition != "" && v.conditions != nil {
		if err := v.conditions.Check(node.Condition); err != nil {
			return fmt.Errorf("%s %s: %w", kind, node.Label(), err)
		}
	}

	return nil
}

func validateTarget(t *types.Target) error {
	if t == nil {
		return nil
	}
	if len(t.Groups) == 0 {
		return fmt.Errorf("target has an empty group list: %w", types.ErrConfiguration)
	}

	for _, group := range t.Groups {
		for ref, m := range group {
			if _, _, err := attribute.SplitReference(ref); err != nil {
				return err
			}
			if m.Pattern != "" {
				if _, err := regexp.Compile(m.Pattern); err != nil {
					return fmt.Errorf("invalid pattern %q: %v: %w", m.Pattern, err, types.ErrConfiguration)
				}
			}
			if m.Field != "" {
				if _, _, err := attribute.SplitReference(m.Field); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// Warnings reports soft issues that do not prevent evaluation.
func (v *Validator) Warnings(node *types.Node) []string {
	var warnings []string

	_ = walk(node, func(n *types.Node) error {
		kind, err := n.Kind()
		if err != nil {
			// Validate reports structural errors; nothing to warn about.
			return nil
		}

		switch kind {
		case types.KindPolicySet:
			if len(n.Policies) == 0 {
				warnings = append(warnings,
					fmt.Sprintf("policy set %s has no policies and always combines to UNDETERMINED", n.Label()))
			}
		case types.KindPolicy:
			if len(n.Rules) == 0 {
				warnings = append(warnings,
					fmt.Sprintf("policy %s has no rules and always combines to UNDETERMINED", n.Label()))
			}
		case types.KindRule:
			if n.Apply != "" {
				warnings = append(warnings,
					fmt.Sprintf("rule %s sets apply, which has no effect on rules", n.Label()))
			}
		}
		return nil
	})

	return warnings
}
