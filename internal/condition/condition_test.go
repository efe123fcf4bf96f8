package condition

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdict-engine/go-core/pkg/attribute"
	"github.com/verdict-engine/go-core/pkg/types"
)

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()

	e, err := NewEvaluator()
	require.NoError(t, err)
	return e
}

func scope(value interface{}) *attribute.Context {
	return attribute.NewContext(nil, value)
}

func TestEvalComparison(t *testing.T) {
	e := newEvaluator(t)
	s := scope(map[string]interface{}{"role": "admin"})

	ok, err := e.Eval(context.Background(), `context.role == "admin"`, s)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Eval(context.Background(), `context.role == "viewer"`, s)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvalNumericComparison(t *testing.T) {
	e := newEvaluator(t)
	s := scope(map[string]interface{}{"level": 7})

	ok, err := e.Eval(context.Background(), `context.level >= 5`, s)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Eval(context.Background(), `context.level >= 10`, s)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvalListMembership(t *testing.T) {
	e := newEvaluator(t)
	s := scope(map[string]interface{}{
		"roles": []interface{}{"admin", "dev"},
	})

	ok, err := e.Eval(context.Background(), `"admin" in context.roles`, s)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Eval(context.Background(), `"ops" in context.roles`, s)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvalInListFunction(t *testing.T) {
	e := newEvaluator(t)
	s := scope(map[string]interface{}{
		"role":  "dev",
		"roles": []interface{}{"admin", "dev"},
		"level": 5,
	})

	ok, err := e.Eval(context.Background(), `inList("dev", ["dev", "ops"])`, s)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Eval(context.Background(), `inList(context.role, ["admin", "dev"])`, s)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Eval(context.Background(), `inList("ops", context.roles)`, s)
	require.NoError(t, err)
	assert.False(t, ok)

	// Non-string values never match, they do not error.
	ok, err = e.Eval(context.Background(), `inList(context.level, ["5"])`, s)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvalNilScope(t *testing.T) {
	e := newEvaluator(t)

	ok, err := e.Eval(context.Background(), `size(context) == 0`, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Eval(context.Background(), `size(context) == 0`, scope(nil))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvalDynResult(t *testing.T) {
	e := newEvaluator(t)

	// context.active has static type dyn; a boolean value is accepted.
	ok, err := e.Eval(context.Background(), `context.active`, scope(map[string]interface{}{"active": true}))
	require.NoError(t, err)
	assert.True(t, ok)

	// A non-boolean value surfaces as a configuration error at runtime.
	_, err = e.Eval(context.Background(), `context.active`, scope(map[string]interface{}{"active": "yes"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestEvalCompileErrors(t *testing.T) {
	e := newEvaluator(t)
	s := scope(map[string]interface{}{"role": "admin"})

	// Syntax error.
	_, err := e.Eval(context.Background(), `context.role ==`, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfiguration))

	// Undeclared variable: only context is visible to conditions.
	_, err = e.Eval(context.Background(), `principal.id == "x"`, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfiguration))

	// Statically non-boolean result.
	_, err = e.Eval(context.Background(), `size(context)`, s)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
}

func TestEvalRuntimeError(t *testing.T) {
	e := newEvaluator(t)
	s := scope(map[string]interface{}{"role": "admin"})

	// Selecting a missing key is an evaluation failure, not a
	// configuration error.
	_, err := e.Eval(context.Background(), `context.missing == "x"`, s)
	require.Error(t, err)
	assert.False(t, errors.Is(err, types.ErrConfiguration))
}

func TestCheckAndCache(t *testing.T) {
	e := newEvaluator(t)

	require.NoError(t, e.Check(`context.role == "admin"`))
	assert.Equal(t, 1, e.CacheSize())

	// Re-checking the same expression reuses the cached program.
	require.NoError(t, e.Check(`context.role == "admin"`))
	assert.Equal(t, 1, e.CacheSize())

	err := e.Check(`context.role ==`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfiguration))
	assert.Equal(t, 1, e.CacheSize())

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}
