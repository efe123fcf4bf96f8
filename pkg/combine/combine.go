// Package combine holds the combining algorithms that reduce child verdicts
// into one, and the registry resolving algorithm names on policy nodes.
package combine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/verdict-engine/go-core/pkg/types"
)

// Built-in algorithm names
const (
	// PermitOverrides is the default algorithm on nodes with children
	PermitOverrides = "permit-overrides"
	// DenyOverrides is the symmetric built-in
	DenyOverrides = "deny-overrides"
)

// Algorithm reduces the verdicts of a node's children. Implementations drive
// every child through evaluate and must fail with the first child error.
type Algorithm interface {
	Combine(ctx context.Context, children []*types.Node, attrs types.AttributeSource, evaluate types.ChildEvaluator) (types.Verdict, error)
}

// Func adapts a plain combining function to Algorithm, the escape hatch for
// custom strategies (first-applicable, only-one-applicable and the like)
// supplied programmatically on a node.
type Func types.CombineFunc

// Combine implements Algorithm
func (f Func) Combine(ctx context.Context, children []*types.Node, attrs types.AttributeSource, evaluate types.ChildEvaluator) (types.Verdict, error) {
	return f(ctx, children, attrs, evaluate)
}

// EvaluateAll fans the children out concurrently and joins every result,
// preserving child order. The first child error fails the whole combination;
// in-flight siblings run to completion and their verdicts are discarded.
// Custom algorithms that want the standard fan-out semantics build on it.
func EvaluateAll(ctx context.Context, children []*types.Node, attrs types.AttributeSource, evaluate types.ChildEvaluator) ([]types.Verdict, error) {
	verdicts := make([]types.Verdict, len(children))
	var g errgroup.Group
	for i, child := range children {
		i, child := i, child
		g.Go(func() error {
			v, err := evaluate(ctx, child, attrs)
			if err != nil {
				return err
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return verdicts, nil
}

// permitOverrides: any child PERMIT wins; no children means UNDETERMINED;
// otherwise DENY. A child's UNDETERMINED never surfaces.
func permitOverrides(ctx context.Context, children []*types.Node, attrs types.AttributeSource, evaluate types.ChildEvaluator) (types.Verdict, error) {
	if len(children) == 0 {
		return types.Undetermined, nil
	}
	verdicts, err := EvaluateAll(ctx, children, attrs, evaluate)
	if err != nil {
		return types.Undetermined, err
	}
	for _, v := range verdicts {
		if v == types.Permit {
			return types.Permit, nil
		}
	}
	return types.Deny, nil
}

// denyOverrides: any child DENY wins; no children means UNDETERMINED;
// otherwise PERMIT.
func denyOverrides(ctx context.Context, children []*types.Node, attrs types.AttributeSource, evaluate types.ChildEvaluator) (types.Verdict, error) {
	if len(children) == 0 {
		return types.Undetermined, nil
	}
	verdicts, err := EvaluateAll(ctx, children, attrs, evaluate)
	if err != nil {
		return types.Undetermined, err
	}
	for _, v := range verdicts {
		if v == types.Deny {
			return types.Deny, nil
		}
	}
	return types.Permit, nil
}
