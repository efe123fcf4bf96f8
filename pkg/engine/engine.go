// Package engine provides the core decision engine for policy evaluation.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/verdict-engine/go-core/internal/condition"
	"github.com/verdict-engine/go-core/pkg/combine"
	"github.com/verdict-engine/go-core/pkg/match"
	"github.com/verdict-engine/go-core/pkg/types"
)

// Engine evaluates policy trees against attribute contexts and reduces them
// to a single verdict.
type Engine struct {
	algorithms *combine.Registry
	matcher    *match.Evaluator
	conditions *condition.Evaluator
	pool       *WorkerPool
	logger     *zap.Logger
	config     Config
}

// Config configures the decision engine.
type Config struct {
	// Workers is the number of workers evaluating batch items in parallel.
	Workers int
	// Logger receives debug traces of evaluation steps. nil disables them.
	Logger *zap.Logger
}

// DefaultConfig returns a default engine configuration.
func DefaultConfig() Config {
	return Config{
		Workers: 16,
	}
}

// New creates a decision engine.
func New(cfg Config) (*Engine, error) {
	conditions, err := condition.NewEvaluator()
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}

	return &Engine{
		algorithms: combine.NewRegistry(),
		matcher:    match.NewEvaluator(),
		conditions: conditions,
		pool:       NewWorkerPool(cfg.Workers),
		logger:     logger,
		config:     cfg,
	}, nil
}

// Algorithms returns the engine's combining algorithm registry. Custom named
// algorithms registered here become addressable from policy documents.
func (e *Engine) Algorithms() *combine.Registry {
	return e.algorithms
}

// Conditions returns the engine's condition evaluator. Loaders use it to
// precompile condition expressions, sharing the engine's program cache.
func (e *Engine) Conditions() *condition.Evaluator {
	return e.conditions
}

// EvaluatePolicy evaluates a policy tree of any kind and returns its verdict.
//
// The node is validated, its combining algorithm resolved, its target and
// condition checked, and finally its payload dispatched: policy sets combine
// their policies, policies combine their rules, rules map their effect. An
// inapplicable target or a false condition yields UNDETERMINED without
// touching children.
func (e *Engine) EvaluatePolicy(ctx context.Context, node *types.Node, attrs types.AttributeSource) (types.Verdict, error) {
	if node == nil {
		return types.Undetermined, fmt.Errorf("nil policy node: %w", types.ErrConfiguration)
	}

	kind, err := node.Kind()
	if err != nil {
		return types.Undetermined, err
	}

	// The algorithm is resolved before the target so a bad apply name fails
	// even when the policy does not apply to this request.
	algorithm, err := e.resolveAlgorithm(node, kind)
	if err != nil {
		return types.Undetermined, err
	}

	applies, err := e.matcher.Applies(ctx, node.Target, attrs)
	if err != nil {
		return types.Undetermined, fmt.Errorf("%s %s: %w", kind, node.Label(), err)
	}
	if !applies {
		e.logger.Debug("target not applicable",
			zap.String("node", node.Label()),
		)
		return types.Undetermined, nil
	}

	if node.Condition != "" {
		ok, err := e.conditions.Eval(ctx, node.Condition, attrs)
		if err != nil {
			return types.Undetermined, fmt.Errorf("%s %s: %w", kind, node.Label(), err)
		}
		if !ok {
			e.logger.Debug("condition not satisfied",
				zap.String("node", node.Label()),
			)
			return types.Undetermined, nil
		}
	}

	switch kind {
	case types.KindPolicySet:
		verdict, err := algorithm.Combine(ctx, node.Policies, attrs, e.EvaluatePolicy)
		if err != nil {
			return types.Undetermined, fmt.Errorf("policy set %s: %w", node.Label(), err)
		}
		return verdict, nil

	case types.KindPolicy:
		verdict, err := algorithm.Combine(ctx, node.Rules, attrs, e.EvaluateRule)
		if err != nil {
			return types.Undetermined, fmt.Errorf("policy %s: %w", node.Label(), err)
		}
		return verdict, nil

	default: // types.KindRule
		verdict, err := node.Effect.Verdict()
		if err != nil {
			return types.Undetermined, fmt.Errorf("rule %s: %w", node.Label(), err)
		}
		return verdict, nil
	}
}

// EvaluateRule evaluates a terminal rule node. A node carrying child
// policies or rules is rejected as a configuration error.
func (e *Engine) EvaluateRule(ctx context.Context, rule *types.Node, attrs types.AttributeSource) (types.Verdict, error) {
	if rule == nil {
		return types.Undetermined, fmt.Errorf("nil rule node: %w", types.ErrConfiguration)
	}

	kind, err := rule.Kind()
	if err != nil {
		return types.Undetermined, err
	}
	if kind != types.KindRule {
		return types.Undetermined, fmt.Errorf("rule %s carries a %s payload: %w", rule.Label(), kind, types.ErrConfiguration)
	}

	return e.EvaluatePolicy(ctx, rule, attrs)
}

// EvaluateTarget reports whether a target applies to the given context.
func (e *Engine) EvaluateTarget(ctx context.Context, target *types.Target, attrs types.AttributeSource) (bool, error) {
	return e.matcher.Applies(ctx, target, attrs)
}

// resolveAlgorithm picks the combining algorithm for a node. A custom
// ApplyFunc wins over a named algorithm; a missing name falls back to
// permit-overrides. Rules carry no children, so they resolve to nil.
func (e *Engine) resolveAlgorithm(node *types.Node, kind types.Kind) (combine.Algorithm, error) {
	if kind == types.KindRule {
		return nil, nil
	}

	if node.ApplyFunc != nil {
		return combine.Func(node.ApplyFunc), nil
	}

	name := node.Apply
	if name == "" {
		name = combine.PermitOverrides
	}

	algorithm, ok := e.algorithms.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%s %s: unknown combining algorithm %q: %w", kind, node.Label(), name, types.ErrConfiguration)
	}
	return algorithm, nil
}

// Close stops the engine's worker pool. Queued batch items still run.
func (e *Engine) Close() {
	e.pool.Stop()
}
