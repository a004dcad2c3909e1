package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/vinstore/internal/resource"
)

// Key identifies one decompressed column of one flushed block.
type Key struct {
	Block  uint32 // block handle in the shard's index
	Column int    // column index, synthetic columns included
}

// Sized is implemented by cached values.
type Sized interface {
	MemSize() int64
}

// LRU is a strict LRU cache of decompressed column arrays bounded by their
// resident size in bytes.
type LRU[V Sized] struct {
	mu        sync.Mutex
	capacity  int64
	size      int64
	items     map[Key]*list.Element
	evictList *list.List
	rc        *resource.Controller
	onEvict   func(V)

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[V Sized] struct {
	key   Key
	value V
	size  int64
}

// NewLRU creates a new LRU cache with the given capacity in bytes.
// If rc is provided, every cached byte is also charged against its memory budget.
func NewLRU[V Sized](capacity int64, rc *resource.Controller) *LRU[V] {
	return &LRU[V]{
		capacity:  capacity,
		items:     make(map[Key]*list.Element),
		evictList: list.New(),
		rc:        rc,
	}
}

// OnEvict registers a hook called for every value leaving the cache.
func (c *LRU[V]) OnEvict(fn func(V)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns a cached value and marks it most recently used.
func (c *LRU[V]) Get(key Key) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.hits.Add(1)
		c.evictList.MoveToFront(ent)
		return ent.Value.(*entry[V]).value, true
	}
	c.misses.Add(1)
	var zero V
	return zero, false
}

// Set caches v under key and reports whether it was admitted.
// Values larger than the capacity, or refused by the memory budget, are not cached.
func (c *LRU[V]) Set(key Key, v V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.items[key]; ok {
		c.removeElement(ent)
	}

	itemSize := v.MemSize()
	if itemSize > c.capacity {
		return false
	}

	// Evict locally first so the released bytes are available to the budget.
	for c.size+itemSize > c.capacity {
		ent := c.evictList.Back()
		if ent == nil {
			break
		}
		c.removeElement(ent)
	}

	if !c.rc.TryAcquireMemory(itemSize) {
		return false
	}

	element := c.evictList.PushFront(&entry[V]{key: key, value: v, size: itemSize})
	c.items[key] = element
	c.size += itemSize
	return true
}

// Len returns the number of cached entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Size returns the current size of the cache in bytes.
func (c *LRU[V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns hit and miss counters.
func (c *LRU[V]) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Purge drops every entry and releases its memory.
func (c *LRU[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.evictList.Len() > 0 {
		c.removeElement(c.evictList.Back())
	}
}

func (c *LRU[V]) removeElement(e *list.Element) {
	c.evictList.Remove(e)
	kv := e.Value.(*entry[V])
	delete(c.items, kv.key)
	c.size -= kv.size
	c.rc.ReleaseMemory(kv.size)
	if c.onEvict != nil {
		c.onEvict(kv.value)
	}
}
