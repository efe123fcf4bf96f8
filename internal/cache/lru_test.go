package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUGetSet(t *testing.T) {
	c := NewLRU(4, time.Minute)

	c.Set("role", "admin")
	v, ok := c.Get("role")
	require.True(t, ok)
	assert.Equal(t, "admin", v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRUStoresNil(t *testing.T) {
	c := NewLRU(4, time.Minute)

	c.Set("clearance", nil)
	v, ok := c.Get("clearance")
	require.True(t, ok)
	assert.Nil(t, v)
}

func TestLRUEviction(t *testing.T) {
	c := NewLRU(2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	// Touch a so b becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRU(4, 20*time.Millisecond)

	c.Set("role", "admin")
	time.Sleep(40 * time.Millisecond)

	_, ok := c.Get("role")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUSetRefreshesTTL(t *testing.T) {
	c := NewLRU(4, 50*time.Millisecond)

	c.Set("role", "admin")
	time.Sleep(30 * time.Millisecond)
	c.Set("role", "editor")
	time.Sleep(30 * time.Millisecond)

	v, ok := c.Get("role")
	require.True(t, ok)
	assert.Equal(t, "editor", v)
}

func TestLRUDeleteAndClear(t *testing.T) {
	c := NewLRU(4, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestLRUStats(t *testing.T) {
	c := NewLRU(4, time.Minute)

	c.Set("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestLRUConcurrent(t *testing.T) {
	c := NewLRU(64, time.Minute)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("key-%d", i%32)
				c.Set(key, g)
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
}
