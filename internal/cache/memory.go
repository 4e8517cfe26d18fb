package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a fixed-capacity in-memory cache that evicts the least recently
// accessed entry. Get promotes an entry; Peek and Contains do not.
//
// The eviction callback runs for entries removed by capacity pressure,
// Delete and Clear. It is called after the cache lock is released.
type LRU[K comparable, V any] struct {
	capacity int
	onEvict  func(K, V)

	items    map[K]*list.Element
	eviction *list.List

	mu    sync.Mutex
	stats Stats
}

type lruEntry[K comparable, V any] struct {
	key   K
	value V
}

// NewLRU creates a cache holding at most capacity entries. A capacity below
// one is treated as one.
func NewLRU[K comparable, V any](capacity int, onEvict func(K, V)) *LRU[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[K, V]{
		capacity: capacity,
		onEvict:  onEvict,
		items:    make(map[K]*list.Element),
		eviction: list.New(),
		stats:    Stats{Capacity: int64(capacity)},
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}

	c.eviction.MoveToFront(elem)
	c.stats.Hits++
	return elem.Value.(*lruEntry[K, V]).value, true
}

// Peek returns the value for key without touching its recency.
func (c *LRU[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return elem.Value.(*lruEntry[K, V]).value, true
}

// Contains reports whether key is present without touching its recency.
func (c *LRU[K, V]) Contains(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.items[key]
	return ok
}

// Put stores value under key as the most recently used entry. When the
// cache is full the least recently used entry is evicted first. Put reports
// whether an eviction happened.
func (c *LRU[K, V]) Put(key K, value V) bool {
	_, _, evicted := c.put(key, value)
	return evicted
}

// Swap stores value like Put and returns the value it replaced, if any. The
// eviction callback does not run for the replaced value; the caller owns it.
func (c *LRU[K, V]) Swap(key K, value V) (old V, replaced bool) {
	old, replaced, _ = c.put(key, value)
	return old, replaced
}

func (c *LRU[K, V]) put(key K, value V) (old V, replaced, evicted bool) {
	var removed []*lruEntry[K, V]

	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.eviction.MoveToFront(elem)
		entry := elem.Value.(*lruEntry[K, V])
		old = entry.value
		entry.value = value
		c.mu.Unlock()
		return old, true, false
	}

	for c.eviction.Len() >= c.capacity {
		removed = append(removed, c.removeElement(c.eviction.Back()))
		c.stats.Evictions++
		c.stats.LastEvict = time.Now()
	}

	c.items[key] = c.eviction.PushFront(&lruEntry[K, V]{key: key, value: value})
	c.mu.Unlock()

	c.notify(removed)
	return old, false, len(removed) > 0
}

// Delete removes key, running the eviction callback if it was present.
func (c *LRU[K, V]) Delete(key K) bool {
	c.mu.Lock()
	elem, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return false
	}
	entry := c.removeElement(elem)
	c.mu.Unlock()

	c.notify([]*lruEntry[K, V]{entry})
	return true
}

// Clear removes every entry, running the eviction callback for each.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	evicted := make([]*lruEntry[K, V], 0, c.eviction.Len())
	for elem := c.eviction.Back(); elem != nil; elem = elem.Prev() {
		evicted = append(evicted, elem.Value.(*lruEntry[K, V]))
	}
	c.items = make(map[K]*list.Element)
	c.eviction.Init()
	c.mu.Unlock()

	c.notify(evicted)
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eviction.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = int64(c.eviction.Len())
	stats.ItemCount = stats.Size
	return stats
}

// removeElement must be called with the lock held.
func (c *LRU[K, V]) removeElement(elem *list.Element) *lruEntry[K, V] {
	c.eviction.Remove(elem)
	entry := elem.Value.(*lruEntry[K, V])
	delete(c.items, entry.key)
	return entry
}

func (c *LRU[K, V]) notify(entries []*lruEntry[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range entries {
		c.onEvict(e.key, e.value)
	}
}
