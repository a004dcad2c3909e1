package column

import (
	"context"
	"fmt"

	"github.com/hupe1980/vinstore/internal/blockmeta"
	"github.com/hupe1980/vinstore/internal/codec"
	"github.com/hupe1980/vinstore/model"
)

// Kind is the physical layout of an Array.
type Kind uint8

const (
	KindInt32 Kind = iota + 1
	KindInt64
	KindFloat64
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// KindOf returns the physical kind for a schema column type.
func KindOf(t model.ColumnType) Kind {
	switch t {
	case model.ColumnTypeInteger:
		return KindInt32
	case model.ColumnTypeDouble:
		return KindFloat64
	case model.ColumnTypeString:
		return KindString
	default:
		panic(fmt.Sprintf("column: no kind for %s; this is a bug", t))
	}
}

// Sink receives compressed column payloads.
type Sink interface {
	Append(ctx context.Context, p []byte) (uint64, error)
}

// Source serves byte ranges previously appended to a Sink.
type Source interface {
	ReadAt(off uint64, size int) ([]byte, error)
}

// Array is a dense column of one kind.
type Array struct {
	kind Kind
	n    int

	i32 []int32
	i64 []int64
	f64 []float64

	offsets []uint32 // len n+1 for KindString
	data    []byte
}

// New returns an empty array with room for capacity rows.
func New(kind Kind, capacity int) *Array {
	a := &Array{kind: kind}
	switch kind {
	case KindInt32:
		a.i32 = make([]int32, 0, capacity)
	case KindInt64:
		a.i64 = make([]int64, 0, capacity)
	case KindFloat64:
		a.f64 = make([]float64, 0, capacity)
	case KindString:
		a.offsets = make([]uint32, 1, capacity+1)
	default:
		panic(fmt.Sprintf("column: unknown kind %d; this is a bug", kind))
	}
	return a
}

// Kind returns the physical kind.
func (a *Array) Kind() Kind { return a.kind }

// Len returns the number of rows.
func (a *Array) Len() int { return a.n }

func (a *Array) checkAppend(idx int) {
	if idx != a.n {
		panic(fmt.Sprintf("column: append at %d, length %d; this is a bug", idx, a.n))
	}
}

// Add stores v at row idx, which must equal Len.
func (a *Array) Add(v model.ColumnValue, idx int) error {
	a.checkAppend(idx)
	switch a.kind {
	case KindInt32:
		i, err := v.Int()
		if err != nil {
			return err
		}
		a.i32 = append(a.i32, i)
	case KindFloat64:
		f, err := v.Double()
		if err != nil {
			return err
		}
		a.f64 = append(a.f64, f)
	case KindString:
		b, err := v.Bytes()
		if err != nil {
			return err
		}
		a.data = append(a.data, b...)
		a.offsets = append(a.offsets, uint32(len(a.data)))
	default:
		return fmt.Errorf("%w: cannot add a %s value to a %s column", model.ErrTypeMismatch, v.Type(), a.kind)
	}
	a.n++
	return nil
}

// AddInt32 stores v at row idx of an Int32 array.
func (a *Array) AddInt32(v int32, idx int) {
	a.checkAppend(idx)
	a.i32 = append(a.i32, v)
	a.n++
}

// AddInt64 stores v at row idx of an Int64 array.
func (a *Array) AddInt64(v int64, idx int) {
	a.checkAppend(idx)
	a.i64 = append(a.i64, v)
	a.n++
}

// Int32s exposes the rows of an Int32 array. The slice must not be modified.
func (a *Array) Int32s() []int32 { return a.i32[:a.n] }

// Int64s exposes the rows of an Int64 array. The slice must not be modified.
func (a *Array) Int64s() []int64 { return a.i64[:a.n] }

// Get materializes row idx into out, reusing out's string buffer.
func (a *Array) Get(idx int, out *model.ColumnValue) {
	switch a.kind {
	case KindInt32:
		out.SetInt(a.i32[idx])
	case KindFloat64:
		out.SetDouble(a.f64[idx])
	case KindString:
		out.SetBytes(a.data[a.offsets[idx]:a.offsets[idx+1]])
	default:
		panic(fmt.Sprintf("column: Get on %s array; this is a bug", a.kind))
	}
}

// Value returns row idx as a new ColumnValue.
func (a *Array) Value(idx int) model.ColumnValue {
	var v model.ColumnValue
	a.Get(idx, &v)
	return v
}

// Reset empties the array and keeps its storage.
func (a *Array) Reset() {
	a.n = 0
	a.i32 = a.i32[:0]
	a.i64 = a.i64[:0]
	a.f64 = a.f64[:0]
	a.data = a.data[:0]
	if a.kind == KindString {
		a.offsets = a.offsets[:1]
		a.offsets[0] = 0
	}
}

// Reorder permutes the rows so that new row i is old row perm[i].
func (a *Array) Reorder(perm []int32) {
	if len(perm) != a.n {
		panic(fmt.Sprintf("column: permutation of %d rows for %d; this is a bug", len(perm), a.n))
	}
	switch a.kind {
	case KindInt32:
		a.i32 = permute(a.i32, perm)
	case KindInt64:
		a.i64 = permute(a.i64, perm)
	case KindFloat64:
		a.f64 = permute(a.f64, perm)
	case KindString:
		data := make([]byte, 0, cap(a.data))
		offsets := make([]uint32, 1, cap(a.offsets))
		for _, p := range perm {
			data = append(data, a.data[a.offsets[p]:a.offsets[p+1]]...)
			offsets = append(offsets, uint32(len(data)))
		}
		a.data, a.offsets = data, offsets
	}
}

func permute[T any](s []T, perm []int32) []T {
	out := make([]T, len(perm), cap(s))
	for i, p := range perm {
		out[i] = s[p]
	}
	return out
}

// RawSize is the uncompressed byte size of the first count rows.
func (a *Array) RawSize(count int) int {
	switch a.kind {
	case KindInt32:
		return 4 * count
	case KindInt64, KindFloat64:
		return 8 * count
	default:
		return 4*count + int(a.offsets[count])
	}
}

// MemSize estimates the resident bytes of the array.
func (a *Array) MemSize() int64 {
	return int64(4*cap(a.i32) + 8*cap(a.i64) + 8*cap(a.f64) + 4*cap(a.offsets) + cap(a.data))
}

// Flush compresses the first count rows, appends them to sink and records
// their location in meta.
func (a *Array) Flush(ctx context.Context, sink Sink, count int, c codec.Compression, meta *blockmeta.ColumnMeta) error {
	if count > a.n {
		panic(fmt.Sprintf("column: flush %d of %d rows; this is a bug", count, a.n))
	}

	var enc []byte
	switch a.kind {
	case KindInt32:
		enc = codec.AppendInt32(nil, a.i32[:count], c)
	case KindInt64:
		enc = codec.AppendInt64(nil, a.i64[:count], c)
	case KindFloat64:
		enc = codec.AppendFloat64(nil, a.f64[:count], c)
	case KindString:
		lengths := make([]uint32, count)
		for i := range lengths {
			lengths[i] = a.offsets[i+1] - a.offsets[i]
		}
		enc = codec.AppendStrings(nil, lengths, a.data[:a.offsets[count]], c)
	}

	off, err := sink.Append(ctx, enc)
	if err != nil {
		return err
	}
	*meta = blockmeta.ColumnMeta{
		CompressedSize: uint32(len(enc)),
		OriginalSize:   uint32(a.RawSize(count)),
		Offset:         off,
	}
	return nil
}

// Read loads rows compressed by Flush.
func Read(src Source, kind Kind, rows int, meta blockmeta.ColumnMeta) (*Array, error) {
	enc, err := src.ReadAt(meta.Offset, int(meta.CompressedSize))
	if err != nil {
		return nil, err
	}

	a := &Array{kind: kind, n: rows}
	switch kind {
	case KindInt32:
		a.i32, err = codec.DecodeInt32(nil, enc, rows)
	case KindInt64:
		a.i64, err = codec.DecodeInt64(nil, enc, rows)
	case KindFloat64:
		a.f64, err = codec.DecodeFloat64(nil, enc, rows)
	case KindString:
		var lengths []uint32
		lengths, a.data, err = codec.DecodeStrings(enc, rows, int(meta.OriginalSize))
		if err == nil {
			a.offsets = make([]uint32, rows+1)
			for i, l := range lengths {
				a.offsets[i+1] = a.offsets[i] + l
			}
		}
	default:
		panic(fmt.Sprintf("column: unknown kind %d; this is a bug", kind))
	}
	if err != nil {
		return nil, err
	}
	if raw := a.RawSize(rows); raw != int(meta.OriginalSize) {
		return nil, fmt.Errorf("%w: column decoded to %d bytes, meta says %d", codec.ErrCorrupt, raw, meta.OriginalSize)
	}
	return a, nil
}
