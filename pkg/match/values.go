package match

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// valueMatches applies the literal matching rules between a matcher payload
// and a resolved attribute value:
//
//   - sequence matcher: subset containment against a sequence value; a
//     scalar value never satisfies a sequence matcher;
//   - scalar matcher against a sequence value: membership;
//   - scalar against scalar: equality with numeric widening.
func valueMatches(matcher, resolved interface{}) bool {
	if wanted, ok := asSequence(matcher); ok {
		have, ok := asSequence(resolved)
		if !ok {
			return false
		}
		return subset(wanted, have)
	}
	if have, ok := asSequence(resolved); ok {
		return contains(have, matcher)
	}
	return scalarEqual(matcher, resolved)
}

// subset reports whether every wanted element appears in have, regardless of
// order or extra elements
func subset(wanted, have []interface{}) bool {
	for _, w := range wanted {
		if !contains(have, w) {
			return false
		}
	}
	return true
}

func contains(seq []interface{}, value interface{}) bool {
	for _, element := range seq {
		if scalarEqual(value, element) {
			return true
		}
	}
	return false
}

// scalarEqual compares two scalars. Numerics compare numerically so document
// literals (yaml ints, json floats) match retriever values regardless of
// width; absent (nil) never matches anything.
func scalarEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return false
	}
	if raw, ok := a.([]byte); ok {
		a = string(raw)
	}
	if raw, ok := b.([]byte); ok {
		b = string(raw)
	}
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return false
	}
	return a == b
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// asSequence views slice and array values uniformly. Byte slices stay
// scalars: SQL and cache backends return text as []byte.
func asSequence(v interface{}) ([]interface{}, bool) {
	switch seq := v.(type) {
	case nil:
		return nil, false
	case []byte:
		return nil, false
	case []interface{}:
		return seq, true
	case []string:
		out := make([]interface{}, len(seq))
		for i, s := range seq {
			out[i] = s
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// stringify renders a scalar for pattern matching
func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}
