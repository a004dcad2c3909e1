package model

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// ColumnType identifies the concrete type stored in a ColumnValue.
type ColumnType uint8

const (
	// ColumnTypeUninitialized is the zero value of an empty ColumnValue.
	ColumnTypeUninitialized ColumnType = iota
	// ColumnTypeInteger is a 4-byte signed integer.
	ColumnTypeInteger
	// ColumnTypeDouble is an 8-byte IEEE float.
	ColumnTypeDouble
	// ColumnTypeString is a variable-length byte string.
	ColumnTypeString
)

// String implements fmt.Stringer.
func (t ColumnType) String() string {
	switch t {
	case ColumnTypeInteger:
		return "INTEGER"
	case ColumnTypeDouble:
		return "DOUBLE"
	case ColumnTypeString:
		return "STRING"
	default:
		return "UNINITIALIZED"
	}
}

// Valid reports whether t is one of the storable column types.
func (t ColumnType) Valid() bool {
	return t >= ColumnTypeInteger && t <= ColumnTypeString
}

// ParseColumnType parses the names returned by ColumnType.String.
func ParseColumnType(s string) (ColumnType, error) {
	switch s {
	case "INTEGER", "integer", "int":
		return ColumnTypeInteger, nil
	case "DOUBLE", "double", "float":
		return ColumnTypeDouble, nil
	case "STRING", "string":
		return ColumnTypeString, nil
	default:
		return ColumnTypeUninitialized, fmt.Errorf("unknown column type %q", s)
	}
}

var (
	// IntNaN is the Integer sentinel returned by aggregations without a result.
	IntNaN int32 = math.MinInt32

	// DoubleNaN is the Double sentinel returned by aggregations without a result.
	DoubleNaN = math.NaN()
)

// ErrTypeMismatch is returned by typed accessors when the stored type differs.
var ErrTypeMismatch = errors.New("column value type mismatch")

// ColumnValue is a single typed cell.
//
// A ColumnValue owns its payload: copies made with Clone or AssignFrom never alias the
// source buffer. The zero value is an empty (uninitialized) value.
//
// A plain assignment (b := a) shares a's string buffer. AssignFrom and SetBytes
// write into the receiver's buffer in place, so they must only be called on a
// value that owns its buffer: one built by a constructor, Clone, or an earlier
// AssignFrom. Use Clone to copy a value that will be overwritten later.
type ColumnValue struct {
	typ ColumnType
	i   int32
	f   float64
	s   []byte
}

// IntValue returns an Integer value.
func IntValue(v int32) ColumnValue {
	return ColumnValue{typ: ColumnTypeInteger, i: v}
}

// DoubleValue returns a Double value.
func DoubleValue(v float64) ColumnValue {
	return ColumnValue{typ: ColumnTypeDouble, f: v}
}

// StringValue returns a String value holding a copy of s.
func StringValue(s string) ColumnValue {
	return ColumnValue{typ: ColumnTypeString, s: []byte(s)}
}

// BytesValue returns a String value holding a copy of b.
func BytesValue(b []byte) ColumnValue {
	return ColumnValue{typ: ColumnTypeString, s: append([]byte{}, b...)}
}

// NaNValue returns the aggregation sentinel for typ.
func NaNValue(typ ColumnType) ColumnValue {
	if typ == ColumnTypeInteger {
		return IntValue(IntNaN)
	}
	return DoubleValue(DoubleNaN)
}

// Type returns the stored type.
func (v ColumnValue) Type() ColumnType { return v.typ }

// IsEmpty reports whether v has never been assigned.
func (v ColumnValue) IsEmpty() bool { return v.typ == ColumnTypeUninitialized }

// Int returns the Integer payload.
func (v ColumnValue) Int() (int32, error) {
	if v.typ != ColumnTypeInteger {
		return 0, fmt.Errorf("%w: want %s, have %s", ErrTypeMismatch, ColumnTypeInteger, v.typ)
	}
	return v.i, nil
}

// Double returns the Double payload.
func (v ColumnValue) Double() (float64, error) {
	if v.typ != ColumnTypeDouble {
		return 0, fmt.Errorf("%w: want %s, have %s", ErrTypeMismatch, ColumnTypeDouble, v.typ)
	}
	return v.f, nil
}

// Bytes returns the String payload. The slice is owned by v and must not be modified.
func (v ColumnValue) Bytes() ([]byte, error) {
	if v.typ != ColumnTypeString {
		return nil, fmt.Errorf("%w: want %s, have %s", ErrTypeMismatch, ColumnTypeString, v.typ)
	}
	return v.s, nil
}

// Str returns the String payload as a Go string.
func (v ColumnValue) Str() (string, error) {
	b, err := v.Bytes()
	return string(b), err
}

// Float returns Integer and Double payloads widened to float64.
func (v ColumnValue) Float() (float64, bool) {
	switch v.typ {
	case ColumnTypeInteger:
		return float64(v.i), true
	case ColumnTypeDouble:
		return v.f, true
	default:
		return 0, false
	}
}

// IsNaN reports whether v is the aggregation sentinel of its type.
func (v ColumnValue) IsNaN() bool {
	switch v.typ {
	case ColumnTypeInteger:
		return v.i == IntNaN
	case ColumnTypeDouble:
		return math.IsNaN(v.f)
	default:
		return false
	}
}

// Equal compares type and raw payload bytes. Doubles compare by bit pattern.
func (v ColumnValue) Equal(o ColumnValue) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case ColumnTypeInteger:
		return v.i == o.i
	case ColumnTypeDouble:
		return math.Float64bits(v.f) == math.Float64bits(o.f)
	case ColumnTypeString:
		return bytes.Equal(v.s, o.s)
	default:
		return true
	}
}

// Clone returns a deep copy.
func (v ColumnValue) Clone() ColumnValue {
	if v.typ == ColumnTypeString {
		v.s = append([]byte{}, v.s...)
	}
	return v
}

// AssignFrom overwrites v with o, reusing v's string buffer when it is large enough.
func (v *ColumnValue) AssignFrom(o ColumnValue) {
	v.typ = o.typ
	v.i = o.i
	v.f = o.f
	if o.typ == ColumnTypeString {
		v.s = append(v.s[:0], o.s...)
	} else {
		v.s = v.s[:0]
	}
}

// SetInt overwrites v with an Integer, keeping any buffer for later reuse.
func (v *ColumnValue) SetInt(i int32) {
	v.typ = ColumnTypeInteger
	v.i = i
}

// SetDouble overwrites v with a Double, keeping any buffer for later reuse.
func (v *ColumnValue) SetDouble(f float64) {
	v.typ = ColumnTypeDouble
	v.f = f
}

// SetBytes overwrites v with a copy of b as a String, reusing v's buffer.
func (v *ColumnValue) SetBytes(b []byte) {
	v.typ = ColumnTypeString
	v.s = append(v.s[:0], b...)
}

// Reset leaves v empty.
func (v *ColumnValue) Reset() {
	*v = ColumnValue{}
}

// SerializedSize is the number of bytes written by AppendBinary.
func (v ColumnValue) SerializedSize() int {
	switch v.typ {
	case ColumnTypeInteger:
		return 4
	case ColumnTypeDouble:
		return 8
	case ColumnTypeString:
		return 4 + len(v.s)
	default:
		return 0
	}
}

// AppendBinary appends the host-endian encoding of v: fixed width for numbers,
// 4-byte length prefix plus bytes for strings. The type is not encoded.
func (v ColumnValue) AppendBinary(b []byte) []byte {
	switch v.typ {
	case ColumnTypeInteger:
		return binary.NativeEndian.AppendUint32(b, uint32(v.i))
	case ColumnTypeDouble:
		return binary.NativeEndian.AppendUint64(b, math.Float64bits(v.f))
	case ColumnTypeString:
		b = binary.NativeEndian.AppendUint32(b, uint32(len(v.s)))
		return append(b, v.s...)
	default:
		return b
	}
}

// DecodeColumnValue decodes a value of type typ from the front of b and returns
// the number of bytes consumed.
func DecodeColumnValue(typ ColumnType, b []byte) (ColumnValue, int, error) {
	switch typ {
	case ColumnTypeInteger:
		if len(b) < 4 {
			return ColumnValue{}, 0, io.ErrUnexpectedEOF
		}
		return IntValue(int32(binary.NativeEndian.Uint32(b))), 4, nil
	case ColumnTypeDouble:
		if len(b) < 8 {
			return ColumnValue{}, 0, io.ErrUnexpectedEOF
		}
		return DoubleValue(math.Float64frombits(binary.NativeEndian.Uint64(b))), 8, nil
	case ColumnTypeString:
		if len(b) < 4 {
			return ColumnValue{}, 0, io.ErrUnexpectedEOF
		}
		n := int(binary.NativeEndian.Uint32(b))
		if len(b) < 4+n {
			return ColumnValue{}, 0, io.ErrUnexpectedEOF
		}
		return BytesValue(b[4 : 4+n]), 4 + n, nil
	default:
		return ColumnValue{}, 0, fmt.Errorf("cannot decode %s value", typ)
	}
}

// String implements fmt.Stringer.
func (v ColumnValue) String() string {
	switch v.typ {
	case ColumnTypeInteger:
		return strconv.FormatInt(int64(v.i), 10)
	case ColumnTypeDouble:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case ColumnTypeString:
		return strconv.Quote(string(v.s))
	default:
		return "<empty>"
	}
}
