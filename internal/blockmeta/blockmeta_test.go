package blockmeta

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/vinstore/internal/fs"
	"github.com/hupe1980/vinstore/internal/metafile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBlock(ix *Index, bounds map[int][2]int64) Handle {
	minTs, maxTs := EmptyBounds(ix.Slots())
	for svid, b := range bounds {
		minTs[svid], maxTs[svid] = b[0], b[1]
	}
	h, _ := ix.Allocate(10, minTs, maxTs)
	return h
}

func TestIndex_BlocksByTimeRange(t *testing.T) {
	ix := NewIndex(4, 2)
	b0 := newBlock(ix, map[int][2]int64{0: {0, 9}, 1: {100, 200}})
	b1 := newBlock(ix, map[int][2]int64{0: {10, 19}})
	b2 := newBlock(ix, map[int][2]int64{0: {5, 15}, 2: {0, 0}})

	// Most recent first.
	assert.Equal(t, []Handle{b2, b1, b0}, ix.BlocksByTimeRange(0, 0, 100))
	assert.Equal(t, []Handle{b2, b0}, ix.BlocksByTimeRange(0, 0, 10))
	// Upper bound is exclusive, lower bound inclusive.
	assert.Equal(t, []Handle{b0}, ix.BlocksByTimeRange(0, 0, 5))
	assert.Equal(t, []Handle{b1}, ix.BlocksByTimeRange(0, 16, 20))
	assert.Empty(t, ix.BlocksByTimeRange(0, 20, 30))

	assert.Equal(t, []Handle{b0}, ix.BlocksByTimeRange(1, 200, 201))
	assert.Equal(t, []Handle{b2}, ix.BlocksByTimeRange(2, 0, 1))
	// Slot without rows in any block.
	assert.Empty(t, ix.BlocksByTimeRange(3, -1<<62, 1<<62))
}

func TestIndex_AllocateCopiesBounds(t *testing.T) {
	ix := NewIndex(2, 1)
	minTs, maxTs := EmptyBounds(2)
	minTs[0], maxTs[0] = 1, 2
	h, b := ix.Allocate(1, minTs, maxTs)

	ResetBounds(minTs, maxTs)
	assert.Equal(t, int64(1), ix.Get(h).MinTs[0])
	assert.Same(t, b, ix.Get(h))
	assert.Len(t, b.Columns, 1)
}

func TestIndex_HandlesAreStable(t *testing.T) {
	ix := NewIndex(1, 1)
	h0 := newBlock(ix, map[int][2]int64{0: {0, 0}})
	first := ix.Get(h0)
	for i := 0; i < 100; i++ {
		newBlock(ix, map[int][2]int64{0: {int64(i), int64(i)}})
	}
	assert.Same(t, first, ix.Get(h0))
	assert.Equal(t, 101, ix.Len())
}

func TestIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard.meta")
	ix := NewIndex(3, 2)
	for i := 0; i < 5; i++ {
		h := newBlock(ix, map[int][2]int64{i % 3: {int64(i), int64(i * 10)}})
		b := ix.Get(h)
		b.Columns[0] = ColumnMeta{CompressedSize: uint32(i + 1), OriginalSize: 40, Offset: uint64(i * 100)}
		b.Columns[1] = ColumnMeta{CompressedSize: 7, OriginalSize: 80, Offset: uint64(i*100 + 50)}
	}
	require.NoError(t, ix.Save(fs.Default, path))

	loaded, err := Load(fs.Default, path, 3, 2)
	require.NoError(t, err)
	require.Equal(t, ix.Len(), loaded.Len())
	for i := 0; i < ix.Len(); i++ {
		assert.Equal(t, ix.Get(Handle(i)), loaded.Get(Handle(i)))
	}
	assert.Equal(t, ix.BlocksByTimeRange(1, 0, 100), loaded.BlocksByTimeRange(1, 0, 100))
	assert.Equal(t, uint64(457), loaded.DataSize())
}

func TestIndex_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shard.meta")

	_, err := Load(fs.Default, path, 3, 2)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, NewIndex(3, 2).Save(fs.Default, path))
	_, err = Load(fs.Default, path, 3, 5)
	assert.ErrorIs(t, err, metafile.ErrCorrupt)

	empty, err := Load(fs.Default, path, 3, 2)
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}
