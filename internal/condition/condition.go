// Package condition provides CEL compilation and evaluation for policy node conditions.
package condition

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	celtypes "github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/verdict-engine/go-core/pkg/types"
)

// Evaluator compiles condition expressions and evaluates them against the
// value bound to an evaluation scope. Compiled programs are cached by
// expression text, so repeated evaluations of the same condition skip the
// parse and check phases.
type Evaluator struct {
	env      *cel.Env
	programs sync.Map // map[string]cel.Program - compiled program cache
}

// NewEvaluator creates an Evaluator. Conditions see a single variable,
// context, holding the value bound to the evaluation scope, plus an
// inList(value, list) membership helper.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),

		// inList(value, list) -> bool
		cel.Function("inList",
			cel.Overload("inList_string_list",
				[]*cel.Type{cel.StringType, cel.ListType(cel.StringType)},
				cel.BoolType,
				cel.BinaryBinding(inList),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// Eval evaluates expression against the given scope. The scope's bound value
// is exposed to the expression as context; a nil scope or nil value binds an
// empty map. The expression must produce a boolean.
func (e *Evaluator) Eval(ctx context.Context, expression string, scope types.AttributeSource) (bool, error) {
	prog, err := e.program(expression)
	if err != nil {
		return false, err
	}

	var value interface{} = map[string]interface{}{}
	if scope != nil {
		if v := scope.Value(); v != nil {
			value = v
		}
	}

	out, _, err := prog.ContextEval(ctx, map[string]interface{}{"context": value})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition %q: %w", expression, err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition %q returned %T, want bool: %w", expression, out.Value(), types.ErrConfiguration)
	}

	return result, nil
}

// Check compiles expression without evaluating it, caching the program for
// later Eval calls. Loaders use it to reject bad conditions before a policy
// is ever evaluated.
func (e *Evaluator) Check(expression string) error {
	_, err := e.program(expression)
	return err
}

// program returns the compiled program for expression, compiling and caching
// it on first use.
func (e *Evaluator) program(expression string) (cel.Program, error) {
	if prog, ok := e.programs.Load(expression); ok {
		return prog.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile condition %q: %w: %w", expression, types.ErrConfiguration, issues.Err())
	}

	// Dyn passes the static gate; Eval still enforces a boolean result.
	if t := ast.OutputType(); t != cel.BoolType && t != cel.DynType {
		return nil, fmt.Errorf("condition %q must evaluate to bool, got %v: %w", expression, t, types.ErrConfiguration)
	}

	prog, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	e.programs.Store(expression, prog)
	return prog, nil
}

// ClearCache drops all cached programs. Call it after a policy reload so
// programs compiled for retired conditions do not accumulate.
func (e *Evaluator) ClearCache() {
	e.programs.Range(func(key, _ interface{}) bool {
		e.programs.Delete(key)
		return true
	})
}

// CacheSize returns the number of cached programs.
func (e *Evaluator) CacheSize() int {
	n := 0
	e.programs.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// inList implements the inList(value, list) overload. Mismatched argument
// shapes evaluate to false rather than erroring.
func inList(value, list ref.Val) ref.Val {
	if _, ok := value.Value().(string); !ok {
		return celtypes.False
	}

	lister, ok := list.(traits.Lister)
	if !ok {
		return celtypes.False
	}

	return celtypes.Bool(lister.Contains(value) == celtypes.True)
}
