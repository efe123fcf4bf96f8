package types

import (
	"context"
	"fmt"
)

// Node is one element of the policy tree. PolicySets, Policies and Rules all
// share this shape; the payload field that is set decides the kind: Policies
// for a policy set, Rules for a policy, Effect for a terminal rule. A node
// must carry exactly one payload; Kind rejects everything else.
type Node struct {
	// Name identifies the node in diagnostics and decision logs
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Description is free-form documentation carried in the document
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Target gates applicability; nil means the node always applies
	Target *Target `json:"target,omitempty" yaml:"target,omitempty"`

	// Apply names the combining algorithm reducing child verdicts. Empty
	// defaults to permit-overrides when the node has children; it is
	// irrelevant on a terminal rule.
	Apply string `json:"apply,omitempty" yaml:"apply,omitempty"`

	// ApplyFunc supplies a custom combining function in place of a name.
	// It takes precedence over Apply, is only settable programmatically and
	// never serialized.
	ApplyFunc CombineFunc `json:"-" yaml:"-"`

	// Condition is an optional CEL expression evaluated once the target
	// applies; false short-circuits the node to Undetermined.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Policies holds child policy nodes (policy set payload). An empty
	// non-nil list is legal and combines to Undetermined.
	Policies []*Node `json:"policies,omitempty" yaml:"policies,omitempty"`
	// Rules holds terminal rule children (policy payload)
	Rules []*Node `json:"rules,omitempty" yaml:"rules,omitempty"`
	// Effect is the terminal rule payload
	Effect Effect `json:"effect,omitempty" yaml:"effect,omitempty"`
}

// Kind reports which payload a node carries
type Kind int

const (
	KindInvalid Kind = iota
	// KindPolicySet aggregates child policies
	KindPolicySet
	// KindPolicy aggregates terminal rules
	KindPolicy
	// KindRule resolves to a fixed effect
	KindRule
)

// String returns the kind name used in diagnostics
func (k Kind) String() string {
	switch k {
	case KindPolicySet:
		return "policy set"
	case KindPolicy:
		return "policy"
	case KindRule:
		return "rule"
	}
	return "invalid"
}

// Kind validates payload exclusivity and reports the node kind. A nil
// Policies or Rules slice means the payload is absent; an empty non-nil
// slice counts as present, so empty child lists stay representable.
func (n *Node) Kind() (Kind, error) {
	var (
		count int
		kind  Kind
	)
	if n.Policies != nil {
		count++
		kind = KindPolicySet
	}
	if n.Rules != nil {
		count++
		kind = KindPolicy
	}
	if n.Effect != "" {
		count++
		kind = KindRule
	}
	switch count {
	case 1:
		return kind, nil
	case 0:
		return KindInvalid, fmt.Errorf("node %s carries none of policies, rules or effect: %w", n.Label(), ErrConfiguration)
	default:
		return KindInvalid, fmt.Errorf("node %s mixes policies, rules and effect payloads: %w", n.Label(), ErrConfiguration)
	}
}

// Label returns the node name, or a placeholder when unnamed, for error
// messages and logs
func (n *Node) Label() string {
	if n == nil {
		return "(nil)"
	}
	if n.Name != "" {
		return n.Name
	}
	return "(unnamed)"
}

// AttributeSource is the evaluation-time view of a context scope: it
// resolves source:key references and exposes the bound request context
// value. *attribute.Context is the canonical implementation.
type AttributeSource interface {
	// Get resolves an attribute reference. Absence is (nil, false, nil),
	// never an error.
	Get(ctx context.Context, reference string) (interface{}, bool, error)
	// Value returns the scope's bound request context value
	Value() interface{}
}

// ChildEvaluator evaluates a single child node against an attribute scope.
// The engine supplies it to combining algorithms.
type ChildEvaluator func(ctx context.Context, child *Node, attrs AttributeSource) (Verdict, error)

// CombineFunc reduces the verdicts of a node's children into one verdict.
// Implementations receive the untouched child list and drive every child
// evaluation through the supplied evaluator; the first child error must fail
// the whole combination.
type CombineFunc func(ctx context.Context, children []*Node, attrs AttributeSource, evaluate ChildEvaluator) (Verdict, error)
