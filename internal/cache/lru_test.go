package cache

import (
	"testing"

	"github.com/hupe1980/vinstore/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blob int64

func (b blob) MemSize() int64 { return int64(b) }

func TestLRU_GetSet(t *testing.T) {
	c := NewLRU[blob](100, nil)

	_, ok := c.Get(Key{Block: 1})
	assert.False(t, ok)

	require.True(t, c.Set(Key{Block: 1, Column: 2}, 10))
	v, ok := c.Get(Key{Block: 1, Column: 2})
	require.True(t, ok)
	assert.Equal(t, blob(10), v)

	_, ok = c.Get(Key{Block: 1, Column: 3})
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestLRU_StrictEvictionOrder(t *testing.T) {
	c := NewLRU[blob](30, nil)
	var evicted []Key

	c.Set(Key{Block: 1}, 10)
	c.Set(Key{Block: 2}, 10)
	c.Set(Key{Block: 3}, 10)

	// Touch 1 so that 2 becomes least recently used.
	_, ok := c.Get(Key{Block: 1})
	require.True(t, ok)

	c.Set(Key{Block: 4}, 10)
	for _, k := range []Key{{Block: 1}, {Block: 2}, {Block: 3}, {Block: 4}} {
		if _, ok := c.Get(k); !ok {
			evicted = append(evicted, k)
		}
	}
	assert.Equal(t, []Key{{Block: 2}}, evicted)
	assert.Equal(t, int64(30), c.Size())
	assert.Equal(t, 3, c.Len())
}

func TestLRU_TooLargeIsNotCached(t *testing.T) {
	c := NewLRU[blob](50, nil)
	assert.False(t, c.Set(Key{Block: 1}, 60))
	assert.Zero(t, c.Len())
}

func TestLRU_ReplaceExisting(t *testing.T) {
	c := NewLRU[blob](50, nil)
	c.Set(Key{Block: 1}, 10)
	c.Set(Key{Block: 1}, 20)
	assert.Equal(t, int64(20), c.Size())
	assert.Equal(t, 1, c.Len())
}

func TestLRU_ResourceController(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 25})
	a := NewLRU[blob](100, rc)
	b := NewLRU[blob](100, rc)

	require.True(t, a.Set(Key{Block: 1}, 20))
	assert.Equal(t, int64(20), rc.MemoryUsage())

	// The global budget is shared between caches.
	assert.False(t, b.Set(Key{Block: 1}, 10))
	assert.Equal(t, int64(20), rc.MemoryUsage())

	a.Purge()
	assert.Zero(t, rc.MemoryUsage())
	assert.True(t, b.Set(Key{Block: 1}, 10))
	assert.Equal(t, int64(10), rc.MemoryUsage())
}

func TestLRU_OnEvict(t *testing.T) {
	c := NewLRU[blob](20, nil)
	var freed []blob
	c.OnEvict(func(v blob) { freed = append(freed, v) })

	c.Set(Key{Block: 1}, 15)
	c.Set(Key{Block: 2}, 10)
	assert.Equal(t, []blob{15}, freed)
}
