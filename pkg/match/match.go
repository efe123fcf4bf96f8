// Package match evaluates target expressions against attribute scopes.
package match

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/verdict-engine/go-core/pkg/types"
)

// Evaluator applies target expressions. Compiled regular expressions are
// cached across evaluations, so one Evaluator should be shared by all
// concurrent evaluations of the same policy corpus.
type Evaluator struct {
	patterns sync.Map // pattern string -> *regexp.Regexp
}

// NewEvaluator returns an Evaluator with an empty pattern cache
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Applies reports whether the target gates open for the scope. A nil target
// always applies. Groups are scanned in order and the first fully-matching
// group short-circuits the scan; a target carrying zero groups is a
// configuration error, not a silent false. Attribute resolution failures
// propagate; absent attributes simply never match.
func (e *Evaluator) Applies(ctx context.Context, target *types.Target, attrs types.AttributeSource) (bool, error) {
	if target == nil {
		return true, nil
	}
	if len(target.Groups) == 0 {
		return false, fmt.Errorf("target has an empty group list: %w", types.ErrConfiguration)
	}
	for _, group := range target.Groups {
		applies, err := e.groupApplies(ctx, group, attrs)
		if err != nil {
			return false, err
		}
		if applies {
			return true, nil
		}
	}
	return false, nil
}

// groupApplies checks every entry of one AND-group. Entries are independent,
// so their resolutions fan out concurrently; the first resolution error
// fails the group, otherwise all entries must match. An empty group is
// vacuously true.
func (e *Evaluator) groupApplies(ctx context.Context, group types.AndGroup, attrs types.AttributeSource) (bool, error) {
	if len(group) == 0 {
		return true, nil
	}
	refs := make([]string, 0, len(group))
	for ref := range group {
		refs = append(refs, ref)
	}

	matched := make([]bool, len(refs))
	var g errgroup.Group
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			ok, err := e.entryMatches(ctx, ref, group[ref], attrs)
			if err != nil {
				return err
			}
			matched[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}
	for _, ok := range matched {
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// entryMatches resolves one attribute reference and applies its matcher
func (e *Evaluator) entryMatches(ctx context.Context, ref string, m types.Matcher, attrs types.AttributeSource) (bool, error) {
	resolved, found, err := attrs.Get(ctx, ref)
	if err != nil {
		return false, err
	}
	switch {
	case m.Field != "":
		if !found {
			return false, nil
		}
		other, otherFound, err := attrs.Get(ctx, m.Field)
		if err != nil {
			return false, err
		}
		if !otherFound {
			return false, nil
		}
		return valueMatches(other, resolved), nil
	case m.Pattern != "":
		if !found {
			return false, nil
		}
		return e.patternMatches(m.Pattern, resolved)
	default:
		if !found {
			return false, nil
		}
		return valueMatches(m.Value, resolved), nil
	}
}

// patternMatches applies a compiled pattern to the resolved value, or to
// each element when the value is a sequence
func (e *Evaluator) patternMatches(pattern string, resolved interface{}) (bool, error) {
	re, err := e.compile(pattern)
	if err != nil {
		return false, err
	}
	if seq, ok := asSequence(resolved); ok {
		for _, element := range seq {
			if re.MatchString(stringify(element)) {
				return true, nil
			}
		}
		return false, nil
	}
	return re.MatchString(stringify(resolved)), nil
}

func (e *Evaluator) compile(pattern string) (*regexp.Regexp, error) {
	if cached, ok := e.patterns.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid match pattern %q: %w", pattern, types.ErrConfiguration)
	}
	e.patterns.Store(pattern, re)
	return re, nil
}
