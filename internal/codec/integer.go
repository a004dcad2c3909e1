package codec

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// AppendInt32 appends the encoding of src to dst.
func AppendInt32(dst []byte, src []int32, c Compression) []byte {
	if len(src) == 0 {
		return AppendGeneric(dst, nil, c)
	}
	lo, hi := src[0], src[0]
	for _, v := range src[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	if lo == hi {
		dst = append(dst, tagConst)
		dst = binary.LittleEndian.AppendUint32(dst, uint32(lo))
		return binary.LittleEndian.AppendUint32(dst, uint32(len(src)))
	}

	width := uint(bits.Len64(uint64(int64(hi) - int64(lo))))
	if width <= MaxPackedWidth {
		dst = append(dst, tagPacked)
		dst = binary.LittleEndian.AppendUint32(dst, uint32(lo))
		dst = append(dst, byte(width))
		return appendPacked(dst, len(src), width, func(i int) uint64 {
			return uint64(int64(src[i]) - int64(lo))
		})
	}

	raw := make([]byte, 0, 4*len(src))
	for _, v := range src {
		raw = binary.LittleEndian.AppendUint32(raw, uint32(v))
	}
	return AppendGeneric(dst, raw, c)
}

// DecodeInt32 decodes n values encoded by AppendInt32, reusing dst.
func DecodeInt32(dst []int32, src []byte, n int) ([]int32, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: empty int32 block", ErrCorrupt)
	}
	out := growInt32(dst, n)

	switch src[0] {
	case tagConst:
		if len(src) != 9 {
			return nil, fmt.Errorf("%w: const int32 block size %d", ErrCorrupt, len(src))
		}
		v := int32(binary.LittleEndian.Uint32(src[1:]))
		if cnt := int(binary.LittleEndian.Uint32(src[5:])); cnt != n {
			return nil, fmt.Errorf("%w: const count %d, want %d", ErrCorrupt, cnt, n)
		}
		for i := range out {
			out[i] = v
		}
		return out, nil

	case tagPacked:
		if len(src) < 6 {
			return nil, fmt.Errorf("%w: packed int32 header", ErrCorrupt)
		}
		lo := int64(int32(binary.LittleEndian.Uint32(src[1:])))
		err := unpack(src[6:], n, uint(src[5]), func(i int, v uint64) {
			out[i] = int32(lo + int64(v))
		})
		if err != nil {
			return nil, err
		}
		return out, nil

	default:
		raw, err := DecodeGeneric(nil, src, 4*n)
		if err != nil {
			return nil, err
		}
		if len(raw) != 4*n {
			return nil, fmt.Errorf("%w: int32 payload %d bytes, want %d", ErrCorrupt, len(raw), 4*n)
		}
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
		}
		return out, nil
	}
}

// AppendInt64 appends the encoding of src to dst.
func AppendInt64(dst []byte, src []int64, c Compression) []byte {
	if len(src) == 0 {
		return AppendGeneric(dst, nil, c)
	}
	lo, hi := src[0], src[0]
	for _, v := range src[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}

	if lo == hi {
		dst = append(dst, tagConst)
		dst = binary.LittleEndian.AppendUint64(dst, uint64(lo))
		return binary.LittleEndian.AppendUint32(dst, uint32(len(src)))
	}

	// Unsigned difference cannot overflow for hi >= lo.
	width := uint(bits.Len64(uint64(hi) - uint64(lo)))
	if width <= MaxPackedWidth {
		dst = append(dst, tagPacked)
		dst = binary.LittleEndian.AppendUint64(dst, uint64(lo))
		dst = append(dst, byte(width))
		return appendPacked(dst, len(src), width, func(i int) uint64 {
			return uint64(src[i]) - uint64(lo)
		})
	}

	raw := make([]byte, 0, 8*len(src))
	for _, v := range src {
		raw = binary.LittleEndian.AppendUint64(raw, uint64(v))
	}
	return AppendGeneric(dst, raw, c)
}

// DecodeInt64 decodes n values encoded by AppendInt64, reusing dst.
func DecodeInt64(dst []int64, src []byte, n int) ([]int64, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: empty int64 block", ErrCorrupt)
	}
	out := growInt64(dst, n)

	switch src[0] {
	case tagConst:
		if len(src) != 13 {
			return nil, fmt.Errorf("%w: const int64 block size %d", ErrCorrupt, len(src))
		}
		v := int64(binary.LittleEndian.Uint64(src[1:]))
		if cnt := int(binary.LittleEndian.Uint32(src[9:])); cnt != n {
			return nil, fmt.Errorf("%w: const count %d, want %d", ErrCorrupt, cnt, n)
		}
		for i := range out {
			out[i] = v
		}
		return out, nil

	case tagPacked:
		if len(src) < 10 {
			return nil, fmt.Errorf("%w: packed int64 header", ErrCorrupt)
		}
		lo := binary.LittleEndian.Uint64(src[1:])
		err := unpack(src[10:], n, uint(src[9]), func(i int, v uint64) {
			out[i] = int64(lo + v)
		})
		if err != nil {
			return nil, err
		}
		return out, nil

	default:
		raw, err := DecodeGeneric(nil, src, 8*n)
		if err != nil {
			return nil, err
		}
		if len(raw) != 8*n {
			return nil, fmt.Errorf("%w: int64 payload %d bytes, want %d", ErrCorrupt, len(raw), 8*n)
		}
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(raw[8*i:]))
		}
		return out, nil
	}
}

func growInt32(b []int32, n int) []int32 {
	if cap(b) >= n {
		return b[:n]
	}
	return make([]int32, n)
}

func growInt64(b []int64, n int) []int64 {
	if cap(b) >= n {
		return b[:n]
	}
	return make([]int64, n)
}
