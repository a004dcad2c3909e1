package codec

import "fmt"

// MaxPackedWidth is the largest bit width the Packed codec accepts.
const MaxPackedWidth = 8

// appendPacked appends n values of width bits each, least significant bit first
// within each byte.
func appendPacked(dst []byte, n int, width uint, value func(i int) uint64) []byte {
	var (
		acc   uint64
		nbits uint
	)
	for i := 0; i < n; i++ {
		acc |= value(i) << nbits
		nbits += width
		for nbits >= 8 {
			dst = append(dst, byte(acc))
			acc >>= 8
			nbits -= 8
		}
	}
	if nbits > 0 {
		dst = append(dst, byte(acc))
	}
	return dst
}

// packedLen is the byte length of n values of width bits.
func packedLen(n int, width uint) int {
	return (n*int(width) + 7) / 8
}

// unpack reads n values of width bits from src and hands each to set.
func unpack(src []byte, n int, width uint, set func(i int, v uint64)) error {
	if width == 0 || width > 56 {
		return fmt.Errorf("%w: bit width %d", ErrCorrupt, width)
	}
	if len(src) < packedLen(n, width) {
		return fmt.Errorf("%w: packed stream too short", ErrCorrupt)
	}
	mask := uint64(1)<<width - 1
	var (
		acc   uint64
		nbits uint
		pos   int
	)
	for i := 0; i < n; i++ {
		for nbits < width {
			acc |= uint64(src[pos]) << nbits
			pos++
			nbits += 8
		}
		set(i, acc&mask)
		acc >>= width
		nbits -= width
	}
	return nil
}
