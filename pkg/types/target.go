package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// AndGroup maps attribute references ("source:key") to matchers. Every entry
// must hold for the group to match; an empty group is vacuously true.
type AndGroup map[string]Matcher

// Target is the applicability gate of a node: one or more AndGroups,
// OR-combined in order. A nil *Target on a node means it always applies; a
// Target with zero groups is a configuration error, not a silent false.
//
// Document form is either a single mapping (one AndGroup) or a sequence of
// mappings; both normalize into Groups at decode time.
type Target struct {
	Groups []AndGroup
}

// UnmarshalYAML accepts a mapping or a sequence of mappings
func (t *Target) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		var group AndGroup
		if err := value.Decode(&group); err != nil {
			return err
		}
		t.Groups = []AndGroup{group}
		return nil
	case yaml.SequenceNode:
		var groups []AndGroup
		if err := value.Decode(&groups); err != nil {
			return err
		}
		t.Groups = groups
		return nil
	}
	return fmt.Errorf("target must be a mapping or a sequence of mappings: %w", ErrConfiguration)
}

// MarshalYAML renders a single group as a bare mapping
func (t Target) MarshalYAML() (interface{}, error) {
	if len(t.Groups) == 1 {
		return t.Groups[0], nil
	}
	return t.Groups, nil
}

// UnmarshalJSON accepts an object or an array of objects
func (t *Target) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(data, &t.Groups)
	}
	var group AndGroup
	if err := json.Unmarshal(data, &group); err != nil {
		return err
	}
	t.Groups = []AndGroup{group}
	return nil
}

// MarshalJSON renders a single group as a bare object
func (t Target) MarshalJSON() ([]byte, error) {
	if len(t.Groups) == 1 {
		return json.Marshal(t.Groups[0])
	}
	return json.Marshal(t.Groups)
}
