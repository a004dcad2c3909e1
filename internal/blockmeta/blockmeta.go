package blockmeta

import (
	"fmt"
	"math"
	"slices"

	"github.com/hupe1980/vinstore/internal/fs"
	"github.com/hupe1980/vinstore/internal/metafile"
)

const (
	magic   = 0x5642494D // "VBIM"
	version = 1
)

// Handle is the stable position of a block in its shard's index.
type Handle uint32

// ColumnMeta locates one compressed column of a block in the data file.
type ColumnMeta struct {
	CompressedSize uint32
	OriginalSize   uint32
	Offset         uint64
}

// BlockMeta describes one flushed block.
// Slots that hold no rows in the block have MinTs = MaxInt64 and MaxTs = MinInt64.
type BlockMeta struct {
	RowCount uint32
	MinTs    []int64
	MaxTs    []int64
	Columns  []ColumnMeta
}

// Overlaps reports whether slot svid has rows inside [lower, upper).
func (b *BlockMeta) Overlaps(svid int, lower, upper int64) bool {
	return !(b.MaxTs[svid] < lower || b.MinTs[svid] >= upper)
}

// Index is the append-only list of a shard's blocks. It is not safe for
// concurrent use; the owning shard serializes access.
type Index struct {
	slots   int
	columns int
	blocks  []*BlockMeta
}

// NewIndex returns an empty index for shards with the given number of entity
// slots and columns per block (synthetic columns included).
func NewIndex(slots, columns int) *Index {
	return &Index{slots: slots, columns: columns}
}

// Allocate appends a new block whose per-slot timestamp bounds are copied from
// minTs and maxTs. Column metadata is filled in by the caller while flushing.
func (ix *Index) Allocate(rowCount int, minTs, maxTs []int64) (Handle, *BlockMeta) {
	if len(minTs) != ix.slots || len(maxTs) != ix.slots {
		panic(fmt.Sprintf("blockmeta: %d/%d slot bounds for %d slots; this is a bug", len(minTs), len(maxTs), ix.slots))
	}
	b := &BlockMeta{
		RowCount: uint32(rowCount),
		MinTs:    slices.Clone(minTs),
		MaxTs:    slices.Clone(maxTs),
		Columns:  make([]ColumnMeta, ix.columns),
	}
	ix.blocks = append(ix.blocks, b)
	return Handle(len(ix.blocks) - 1), b
}

// Get returns the block for h.
func (ix *Index) Get(h Handle) *BlockMeta {
	return ix.blocks[h]
}

// Len returns the number of blocks.
func (ix *Index) Len() int { return len(ix.blocks) }

// Columns returns the number of columns per block.
func (ix *Index) Columns() int { return ix.columns }

// Slots returns the number of entity slots per block.
func (ix *Index) Slots() int { return ix.slots }

// BlocksByTimeRange returns every block holding rows of svid inside
// [lower, upper), most recent block first.
func (ix *Index) BlocksByTimeRange(svid int, lower, upper int64) []Handle {
	var out []Handle
	for i := len(ix.blocks) - 1; i >= 0; i-- {
		if ix.blocks[i].Overlaps(svid, lower, upper) {
			out = append(out, Handle(i))
		}
	}
	return out
}

// DataSize returns the end of the furthest column payload, i.e. the number of data
// file bytes described by the index.
func (ix *Index) DataSize() uint64 {
	var end uint64
	for _, b := range ix.blocks {
		for _, c := range b.Columns {
			end = max(end, c.Offset+uint64(c.CompressedSize))
		}
	}
	return end
}

// Save persists the index in insertion order.
//
// Payload:
//
//	Slots (4 bytes)
//	Columns (4 bytes)
//	NumBlocks (4 bytes)
//	Blocks...
//	  RowCount (4 bytes)
//	  MinTs (8 bytes * Slots)
//	  MaxTs (8 bytes * Slots)
//	  CompressedSize (4 bytes * Columns)
//	  OriginalSize (4 bytes * Columns)
//	  Offset (8 bytes * Columns)
func (ix *Index) Save(fsys fs.FileSystem, path string) error {
	perBlock := 4 + 16*ix.slots + 16*ix.columns
	enc := metafile.NewEncoder(12 + len(ix.blocks)*perBlock)
	enc.Uint32(uint32(ix.slots))
	enc.Uint32(uint32(ix.columns))
	enc.Uint32(uint32(len(ix.blocks)))
	for _, b := range ix.blocks {
		enc.Uint32(b.RowCount)
		for _, ts := range b.MinTs {
			enc.Int64(ts)
		}
		for _, ts := range b.MaxTs {
			enc.Int64(ts)
		}
		for _, c := range b.Columns {
			enc.Uint32(c.CompressedSize)
		}
		for _, c := range b.Columns {
			enc.Uint32(c.OriginalSize)
		}
		for _, c := range b.Columns {
			enc.Uint64(c.Offset)
		}
	}
	return metafile.Write(fsys, path, magic, version, enc.Bytes())
}

// Load reads an index written by Save. The slot and column counts must match
// what the caller expects; a mismatch is reported as corruption.
func Load(fsys fs.FileSystem, path string, slots, columns int) (*Index, error) {
	payload, err := metafile.Read(fsys, path, magic, version)
	if err != nil {
		return nil, err
	}

	dec := metafile.NewDecoder(payload)
	gotSlots, gotColumns := int(dec.Uint32()), int(dec.Uint32())
	n := int(dec.Uint32())
	if dec.Err() != nil {
		return nil, dec.Err()
	}
	if gotSlots != slots || gotColumns != columns {
		return nil, fmt.Errorf("%w: index has %d slots/%d columns, want %d/%d",
			metafile.ErrCorrupt, gotSlots, gotColumns, slots, columns)
	}
	perBlock := 4 + 16*slots + 16*columns
	if n < 0 || n > dec.Remaining()/perBlock {
		return nil, fmt.Errorf("%w: impossible block count %d", metafile.ErrCorrupt, n)
	}

	ix := &Index{slots: slots, columns: columns, blocks: make([]*BlockMeta, 0, n)}
	for i := 0; i < n; i++ {
		b := &BlockMeta{
			RowCount: dec.Uint32(),
			MinTs:    make([]int64, slots),
			MaxTs:    make([]int64, slots),
			Columns:  make([]ColumnMeta, columns),
		}
		for s := range b.MinTs {
			b.MinTs[s] = dec.Int64()
		}
		for s := range b.MaxTs {
			b.MaxTs[s] = dec.Int64()
		}
		for c := range b.Columns {
			b.Columns[c].CompressedSize = dec.Uint32()
		}
		for c := range b.Columns {
			b.Columns[c].OriginalSize = dec.Uint32()
		}
		for c := range b.Columns {
			b.Columns[c].Offset = dec.Uint64()
		}
		ix.blocks = append(ix.blocks, b)
	}
	if err := dec.Finish(); err != nil {
		return nil, err
	}
	return ix, nil
}

// EmptyBounds returns per-slot min/max arrays initialized to "no rows".
func EmptyBounds(slots int) (minTs, maxTs []int64) {
	minTs = make([]int64, slots)
	maxTs = make([]int64, slots)
	ResetBounds(minTs, maxTs)
	return minTs, maxTs
}

// ResetBounds marks every slot as holding no rows.
func ResetBounds(minTs, maxTs []int64) {
	for i := range minTs {
		minTs[i] = math.MaxInt64
		maxTs[i] = math.MinInt64
	}
}
