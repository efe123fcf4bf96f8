// Package cache provides the in-process LRU store backing cached attribute
// retrieval.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Size   int
	Hits   uint64
	Misses uint64
}

// LRU is a fixed-capacity cache with per-entry TTL. An expired entry counts
// as a miss and is removed on access. Safe for concurrent use.
type LRU struct {
	capacity int
	ttl      time.Duration

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List

	hits   atomic.Uint64
	misses atomic.Uint64
}

type entry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

// NewLRU creates a cache holding at most capacity entries, each living for
// ttl after its last Set.
func NewLRU(capacity int, ttl time.Duration) *LRU {
	return &LRU{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached value for key. The second return reports presence,
// so a stored nil is distinguishable from a miss.
func (c *LRU) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	e := elem.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.removeElement(elem)
		c.misses.Add(1)
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.hits.Add(1)
	return e.value, true
}

// Set stores value under key, resetting its TTL and evicting the least
// recently used entries if the cache is full.
func (c *LRU) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	for c.order.Len() >= c.capacity {
		c.evictOldest()
	}

	elem := c.order.PushFront(&entry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.items[key] = elem
}

// Delete removes key if present.
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Clear drops every entry. Hit and miss counters are preserved.
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of entries currently held, expired ones included.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns a snapshot of size and hit counters.
func (c *LRU) Stats() Stats {
	c.mu.Lock()
	size := c.order.Len()
	c.mu.Unlock()

	return Stats{
		Size:   size,
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

func (c *LRU) removeElement(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(c.items, e.key)
	c.order.Remove(elem)
}

func (c *LRU) evictOldest() {
	if elem := c.order.Back(); elem != nil {
		c.removeElement(elem)
	}
}
