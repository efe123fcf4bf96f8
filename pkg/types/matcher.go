package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Matcher is one comparison inside an AndGroup, polymorphic over the
// document value shape:
//
//   - a scalar is a literal: equality against a scalar attribute, membership
//     against a sequence attribute;
//   - a sequence is a subset constraint: every element must be present in
//     the resolved attribute sequence;
//   - {pattern: "re"} matches a regular expression against the value, or
//     against any element of a sequence;
//   - {field: "source:key"} resolves a second attribute through the same
//     scope and compares it under the literal rules.
//
// Dispatch precedence at evaluation time is Field, then Pattern, then Value.
// An absent attribute never matches any form.
type Matcher struct {
	// Value is the literal payload: a scalar or a sequence of scalars
	Value interface{}
	// Pattern is an uncompiled regular expression
	Pattern string
	// Field is a cross-attribute reference
	Field string
}

// matcherSpec is the mapping form of a matcher in documents
type matcherSpec struct {
	Field   string `json:"field,omitempty" yaml:"field,omitempty"`
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

func (m *Matcher) fromSpec(spec matcherSpec) error {
	if spec.Field == "" && spec.Pattern == "" {
		return fmt.Errorf("matcher mapping needs a field or a pattern entry: %w", ErrConfiguration)
	}
	if spec.Field != "" && spec.Pattern != "" {
		return fmt.Errorf("matcher mapping cannot carry both field and pattern: %w", ErrConfiguration)
	}
	m.Field = spec.Field
	m.Pattern = spec.Pattern
	return nil
}

// UnmarshalYAML accepts a scalar, a sequence, or a {field}/{pattern} mapping
func (m *Matcher) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&m.Value)
	case yaml.SequenceNode:
		var seq []interface{}
		if err := value.Decode(&seq); err != nil {
			return err
		}
		m.Value = seq
		return nil
	case yaml.MappingNode:
		var spec matcherSpec
		if err := value.Decode(&spec); err != nil {
			return err
		}
		return m.fromSpec(spec)
	}
	return fmt.Errorf("unsupported matcher shape: %w", ErrConfiguration)
}

// MarshalYAML renders the matcher back into its document form
func (m Matcher) MarshalYAML() (interface{}, error) {
	switch {
	case m.Field != "":
		return matcherSpec{Field: m.Field}, nil
	case m.Pattern != "":
		return matcherSpec{Pattern: m.Pattern}, nil
	}
	return m.Value, nil
}

// UnmarshalJSON accepts a scalar, an array, or a {field}/{pattern} object
func (m *Matcher) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return fmt.Errorf("empty matcher: %w", ErrConfiguration)
	}
	if trimmed[0] == '{' {
		var spec matcherSpec
		if err := json.Unmarshal(data, &spec); err != nil {
			return err
		}
		return m.fromSpec(spec)
	}
	return json.Unmarshal(data, &m.Value)
}

// MarshalJSON renders the matcher back into its document form
func (m Matcher) MarshalJSON() ([]byte, error) {
	switch {
	case m.Field != "":
		return json.Marshal(matcherSpec{Field: m.Field})
	case m.Pattern != "":
		return json.Marshal(matcherSpec{Pattern: m.Pattern})
	}
	return json.Marshal(m.Value)
}
