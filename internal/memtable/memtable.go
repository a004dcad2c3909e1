package memtable

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vinstore/internal/blockmeta"
	"github.com/hupe1980/vinstore/internal/codec"
	"github.com/hupe1980/vinstore/internal/column"
	"github.com/hupe1980/vinstore/model"
)

var (
	// ErrFull is returned by Add when the table is at capacity.
	ErrFull = errors.New("memtable: full")
	// ErrIncompleteRow is returned by Add when a row does not match the schema.
	ErrIncompleteRow = errors.New("memtable: row does not match schema")
)

// Synthetic column positions relative to the schema column count.
const (
	VidColumn = iota
	TsColumn
	OrigColumn
	SyntheticColumns
)

// Config sizes a MemTable.
type Config struct {
	Schema    model.Schema
	Capacity  int
	Slots     int
	ShardBits uint
}

// MemTable is not safe for concurrent use; the owning shard serializes access.
type MemTable struct {
	schema    model.Schema
	capacity  int
	shardBits uint

	cols []*column.Array // schema columns, then vid, ts, orig
	n    int

	minTs, maxTs []int64
	latestTs     []int64
	latestIdx    []int32
	touched      *roaring.Bitmap
}

// New returns an empty MemTable.
func New(cfg Config) *MemTable {
	ncols := cfg.Schema.Len()
	m := &MemTable{
		schema:    cfg.Schema,
		capacity:  cfg.Capacity,
		shardBits: cfg.ShardBits,
		cols:      make([]*column.Array, ncols+SyntheticColumns),
		latestTs:  make([]int64, cfg.Slots),
		latestIdx: make([]int32, cfg.Slots),
		touched:   roaring.New(),
	}
	for i, c := range cfg.Schema.Columns {
		m.cols[i] = column.New(column.KindOf(c.Type), cfg.Capacity)
	}
	m.cols[ncols+VidColumn] = column.New(column.KindInt32, cfg.Capacity)
	m.cols[ncols+TsColumn] = column.New(column.KindInt64, cfg.Capacity)
	m.cols[ncols+OrigColumn] = column.New(column.KindInt32, cfg.Capacity)
	m.minTs, m.maxTs = blockmeta.EmptyBounds(cfg.Slots)
	m.resetLatest()
	return m
}

func (m *MemTable) resetLatest() {
	for i := range m.latestTs {
		m.latestTs[i] = math.MinInt64
		m.latestIdx[i] = -1
	}
	m.touched.Clear()
}

// Len returns the number of resident rows.
func (m *MemTable) Len() int { return m.n }

// Capacity returns the row limit.
func (m *MemTable) Capacity() int { return m.capacity }

// Column returns the array for column index i (synthetic columns follow the schema).
func (m *MemTable) Column(i int) *column.Array { return m.cols[i] }

func (m *MemTable) vids() *column.Array { return m.cols[m.schema.Len()+VidColumn] }
func (m *MemTable) ts() *column.Array   { return m.cols[m.schema.Len()+TsColumn] }
func (m *MemTable) orig() *column.Array { return m.cols[m.schema.Len()+OrigColumn] }

// Timestamp returns the timestamp of row idx.
func (m *MemTable) Timestamp(idx int) int64 { return m.ts().Int64s()[idx] }

// Svid returns the slot of vid within its shard.
func (m *MemTable) Svid(vid uint16) int { return int(vid >> m.shardBits) }

// Add appends row for vid and reports whether the table is now full.
// A row must carry exactly the schema's columns with matching types; otherwise
// nothing is written.
func (m *MemTable) Add(row model.Row, vid uint16) (bool, error) {
	if m.n >= m.capacity {
		return true, ErrFull
	}
	if err := m.checkRow(row); err != nil {
		return false, err
	}

	idx := m.n
	for i, c := range m.schema.Columns {
		if err := m.cols[i].Add(row.Columns[c.Name], idx); err != nil {
			panic(fmt.Sprintf("memtable: validated row rejected: %v; this is a bug", err))
		}
	}
	m.vids().AddInt32(int32(vid), idx)
	m.ts().AddInt64(row.Timestamp, idx)
	m.orig().AddInt32(int32(idx), idx)

	svid := m.Svid(vid)
	m.minTs[svid] = min(m.minTs[svid], row.Timestamp)
	m.maxTs[svid] = max(m.maxTs[svid], row.Timestamp)
	// Equal timestamps: the most recent Add wins.
	if row.Timestamp >= m.latestTs[svid] {
		m.latestTs[svid] = row.Timestamp
		m.latestIdx[svid] = int32(idx)
	}
	m.touched.Add(uint32(svid))

	m.n++
	return m.n >= m.capacity, nil
}

func (m *MemTable) checkRow(row model.Row) error {
	if len(row.Columns) != m.schema.Len() {
		return fmt.Errorf("%w: %d columns, schema has %d", ErrIncompleteRow, len(row.Columns), m.schema.Len())
	}
	for _, c := range m.schema.Columns {
		v, ok := row.Columns[c.Name]
		if !ok {
			return fmt.Errorf("%w: missing column %q", ErrIncompleteRow, c.Name)
		}
		if v.Type() != c.Type {
			return fmt.Errorf("%w: column %q is %s, schema says %s", ErrIncompleteRow, c.Name, v.Type(), c.Type)
		}
	}
	return nil
}

// Latest returns the index and timestamp of the newest resident row of svid.
func (m *MemTable) Latest(svid int) (idx int, ts int64, ok bool) {
	i := m.latestIdx[svid]
	if i < 0 {
		return 0, 0, false
	}
	return int(i), m.latestTs[svid], true
}

// Touched calls fn for every slot with resident rows, in ascending order.
func (m *MemTable) Touched(fn func(svid int)) {
	it := m.touched.Iterator()
	for it.HasNext() {
		fn(int(it.Next()))
	}
}

// RowsInRange returns the indices of resident rows of vid with lower <= ts < upper,
// in insertion order.
func (m *MemTable) RowsInRange(vid uint16, lower, upper int64) []int {
	svid := m.Svid(vid)
	if m.maxTs[svid] < lower || m.minTs[svid] >= upper {
		return nil
	}
	vids, ts := m.vids().Int32s(), m.ts().Int64s()
	var out []int
	for i := 0; i < m.n; i++ {
		if vids[i] == int32(vid) && ts[i] >= lower && ts[i] < upper {
			out = append(out, i)
		}
	}
	return out
}

// Flush writes the resident rows as one block: rows are sorted by (vid, ts),
// every column is appended to sink in column order, and the block is registered
// in ix only after all columns were written. An empty table is a no-op.
func (m *MemTable) Flush(ctx context.Context, ix *blockmeta.Index, sink column.Sink, c codec.Compression) (blockmeta.Handle, bool, error) {
	if m.n == 0 {
		return 0, false, nil
	}

	m.sortRows()

	metas := make([]blockmeta.ColumnMeta, len(m.cols))
	for i, col := range m.cols {
		if err := col.Flush(ctx, sink, m.n, c, &metas[i]); err != nil {
			return 0, false, fmt.Errorf("flush column %d: %w", i, err)
		}
	}

	h, b := ix.Allocate(m.n, m.minTs, m.maxTs)
	copy(b.Columns, metas)

	m.Reset()
	return h, true, nil
}

func (m *MemTable) sortRows() {
	vids, ts, orig := m.vids().Int32s(), m.ts().Int64s(), m.orig().Int32s()
	perm := make([]int32, m.n)
	for i := range perm {
		perm[i] = int32(i)
	}
	slices.SortStableFunc(perm, func(a, b int32) int {
		if vids[a] != vids[b] {
			return int(vids[a]) - int(vids[b])
		}
		if ts[a] != ts[b] {
			if ts[a] < ts[b] {
				return -1
			}
			return 1
		}
		return int(orig[a]) - int(orig[b])
	})
	for _, col := range m.cols {
		col.Reorder(perm)
	}
	// Latest indices refer to pre-sort positions.
	inv := make([]int32, m.n)
	for newIdx, oldIdx := range perm {
		inv[oldIdx] = int32(newIdx)
	}
	for svid, idx := range m.latestIdx {
		if idx >= 0 {
			m.latestIdx[svid] = inv[idx]
		}
	}
}

// Reset empties the table and keeps its storage.
func (m *MemTable) Reset() {
	for _, col := range m.cols {
		col.Reset()
	}
	m.n = 0
	blockmeta.ResetBounds(m.minTs, m.maxTs)
	m.resetLatest()
}

// MemSize estimates the resident bytes of the column arrays.
func (m *MemTable) MemSize() int64 {
	var n int64
	for _, col := range m.cols {
		n += col.MemSize()
	}
	return n
}
