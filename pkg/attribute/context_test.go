package attribute

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdict-engine/go-core/pkg/types"
)

func TestSplitReference(t *testing.T) {
	source, key, err := SplitReference("usr:id")
	require.NoError(t, err)
	assert.Equal(t, "usr", source)
	assert.Equal(t, "id", key)

	// only the first separator splits; keys keep theirs
	source, key, err = SplitReference("doc:meta:owner")
	require.NoError(t, err)
	assert.Equal(t, "doc", source)
	assert.Equal(t, "meta:owner", key)

	_, _, err = SplitReference("noseparator")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestContextGetOwnRegistry(t *testing.T) {
	root := NewContext(nil, nil)
	require.NoError(t, root.Register([]string{"grp"}, staticFunc(map[string]interface{}{"role": []interface{}{"admin"}}), nil))

	value, found, err := root.Get(context.Background(), "grp:role")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []interface{}{"admin"}, value)
}

func TestContextParentFallback(t *testing.T) {
	root := NewContext(nil, nil)
	require.NoError(t, root.Register([]string{"app"}, staticFunc(map[string]interface{}{"env": "prod"}), nil))

	child := root.CreateChild(map[string]interface{}{"user": "u1"})

	// registered only on the parent: child still resolves it
	value, found, err := child.Get(context.Background(), "app:env")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "prod", value)

	// registered on neither: absent, not an error
	_, found, err = child.Get(context.Background(), "ghost:attr")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestContextChildShadowsParent(t *testing.T) {
	root := NewContext(nil, nil)
	require.NoError(t, root.Register([]string{"cfg"}, staticFunc(map[string]interface{}{"mode": "global"}), nil))

	child := root.CreateChild(nil)
	require.NoError(t, child.Register([]string{"cfg"}, staticFunc(map[string]interface{}{"mode": "scoped"}), nil))

	value, found, err := child.Get(context.Background(), "cfg:mode")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "scoped", value)

	// the parent keeps its own view
	value, _, err = root.Get(context.Background(), "cfg:mode")
	require.NoError(t, err)
	assert.Equal(t, "global", value)
}

func TestContextChildRegistrationInvisibleToParent(t *testing.T) {
	root := NewContext(nil, nil)
	child := root.CreateChild(nil)
	require.NoError(t, child.Register([]string{"session"}, staticFunc(map[string]interface{}{"id": "s-1"}), nil))

	_, found, err := root.Get(context.Background(), "session:id")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestContextEachScopeBindsOwnValue(t *testing.T) {
	// the same retriever reads whatever context value the resolving scope
	// bound, so a parent fallback sees the parent's value, not the child's
	fromBoundMap := func(_ context.Context, key string, reqCtx interface{}) (interface{}, error) {
		m, _ := reqCtx.(map[string]interface{})
		return m[key], nil
	}

	root := NewContext(nil, map[string]interface{}{"who": "root-scope"})
	require.NoError(t, root.Register([]string{"ctx"}, fromBoundMap, nil))

	child := root.CreateChild(map[string]interface{}{"who": "child-scope"})
	require.NoError(t, child.Register([]string{"kid"}, fromBoundMap, nil))

	// child's own source sees the child's bound value
	value, _, err := child.Get(context.Background(), "kid:who")
	require.NoError(t, err)
	assert.Equal(t, "child-scope", value)

	// fallback to the parent's source binds the parent's value
	value, _, err = child.Get(context.Background(), "ctx:who")
	require.NoError(t, err)
	assert.Equal(t, "root-scope", value)
}

func TestContextValueAccessors(t *testing.T) {
	root := NewContext(nil, "bound")
	assert.Equal(t, "bound", root.Value())
	assert.NotNil(t, root.Registry())

	child := root.CreateChild(42)
	assert.Equal(t, 42, child.Value())
}

func TestContextConcurrentGets(t *testing.T) {
	root := NewContext(nil, nil)
	require.NoError(t, root.Register([]string{"grp"}, staticFunc(map[string]interface{}{"role": "admin"}), nil))
	child := root.CreateChild(nil)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, found, err := child.Get(context.Background(), "grp:role")
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "admin", value)
		}()
	}
	wg.Wait()
}
