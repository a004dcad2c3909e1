package metafile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encoder builds a payload. Encoding never fails.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with capacity for sizeHint bytes.
func NewEncoder(sizeHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

func (e *Encoder) Uint8(v uint8)   { e.buf = append(e.buf, v) }
func (e *Encoder) Uint16(v uint16) { e.buf = binary.NativeEndian.AppendUint16(e.buf, v) }
func (e *Encoder) Uint32(v uint32) { e.buf = binary.NativeEndian.AppendUint32(e.buf, v) }
func (e *Encoder) Uint64(v uint64) { e.buf = binary.NativeEndian.AppendUint64(e.buf, v) }
func (e *Encoder) Int64(v int64)   { e.Uint64(uint64(v)) }

// Raw appends b without a length prefix.
func (e *Encoder) Raw(b []byte) { e.buf = append(e.buf, b...) }

// String appends a 4-byte length prefix and s.
func (e *Encoder) String(s string) {
	e.Uint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// Append gives fn direct access to the buffer, e.g. for ColumnValue.AppendBinary.
func (e *Encoder) Append(fn func([]byte) []byte) { e.buf = fn(e.buf) }

// Bytes returns the encoded payload.
func (e *Encoder) Bytes() []byte { return e.buf }

// Decoder reads a payload. The first failure sticks and later reads return zero values.
type Decoder struct {
	buf []byte
	pos int
	err error
}

// NewDecoder returns a Decoder over b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.buf) {
		d.err = fmt.Errorf("%w: payload truncated at offset %d", ErrCorrupt, d.pos)
		return nil
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *Decoder) Uint8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *Decoder) Uint16() uint16 {
	if b := d.take(2); b != nil {
		return binary.NativeEndian.Uint16(b)
	}
	return 0
}

func (d *Decoder) Uint32() uint32 {
	if b := d.take(4); b != nil {
		return binary.NativeEndian.Uint32(b)
	}
	return 0
}

func (d *Decoder) Uint64() uint64 {
	if b := d.take(8); b != nil {
		return binary.NativeEndian.Uint64(b)
	}
	return 0
}

func (d *Decoder) Int64() int64 { return int64(d.Uint64()) }

// Raw returns the next n bytes. The slice aliases the payload.
func (d *Decoder) Raw(n int) []byte { return d.take(n) }

// String reads a 4-byte length prefix and the string.
func (d *Decoder) String() string {
	n := d.Uint32()
	if n > math.MaxInt32 {
		d.Fail("string length %d", n)
		return ""
	}
	return string(d.take(int(n)))
}

// Consume hands the unread remainder to fn, which reports how many bytes it used.
func (d *Decoder) Consume(fn func([]byte) (int, error)) {
	if d.err != nil {
		return
	}
	n, err := fn(d.buf[d.pos:])
	if err != nil {
		d.err = fmt.Errorf("%w: %v", ErrCorrupt, err)
		return
	}
	d.pos += n
}

// Fail records a structural error unless one is already set.
func (d *Decoder) Fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
	}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

// Err returns the first error.
func (d *Decoder) Err() error { return d.err }

// Finish returns the first error, or ErrCorrupt if unread bytes remain.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.pos != len(d.buf) {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(d.buf)-d.pos)
	}
	return nil
}
