package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// Key identifies a cached document.
type Key struct {
	Collection string
	ID         string
}

// LRU is a bounded least-recently-used cache with optional TTL expiry.
type LRU struct {
	mu        sync.Mutex
	capacity  int
	ttl       time.Duration
	items     map[Key]*list.Element
	evictList *list.List

	hits   atomic.Int64
	misses atomic.Int64

	// now is swappable for TTL tests.
	now func() time.Time
}

type entry struct {
	key      Key
	value    any
	storedAt time.Time
}

// New creates an LRU cache holding up to capacity entries.
// ttl <= 0 disables expiry.
func New(capacity int, ttl time.Duration) *LRU {
	return &LRU{
		capacity:  capacity,
		ttl:       ttl,
		items:     make(map[Key]*list.Element),
		evictList: list.New(),
		now:       time.Now,
	}
}

// Get returns the cached value for key, if present and not expired.
func (c *LRU) Get(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	e := ent.Value.(*entry)
	if c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl {
		c.removeElement(ent)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	c.evictList.MoveToFront(ent)
	return e.value, true
}

// Set caches a value, evicting the least-recently-used entry when full.
func (c *LRU) Set(key Key, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capacity <= 0 {
		return
	}

	if ent, ok := c.items[key]; ok {
		c.evictList.MoveToFront(ent)
		e := ent.Value.(*entry)
		e.value = v
		e.storedAt = c.now()
		return
	}

	for c.evictList.Len() >= c.capacity {
		back := c.evictList.Back()
		if back == nil {
			break
		}
		c.removeElement(back)
	}

	ent := &entry{key: key, value: v, storedAt: c.now()}
	c.items[key] = c.evictList.PushFront(ent)
}

// Delete removes a single entry.
func (c *LRU) Delete(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.removeElement(ent)
	}
}

// Invalidate removes entries matching the predicate.
func (c *LRU) Invalidate(predicate func(Key) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*list.Element
	for key, element := range c.items {
		if predicate(key) {
			toRemove = append(toRemove, element)
		}
	}
	for _, e := range toRemove {
		c.removeElement(e)
	}
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Stats returns hit/miss counters.
func (c *LRU) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// SetClock overrides the time source. For tests.
func (c *LRU) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *LRU) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	delete(c.items, e.Value.(*entry).key)
}
