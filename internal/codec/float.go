package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	floatHighBits = 24
	floatLowBytes = 5
	floatLowShift = 64 - floatHighBits
	floatLowMask  = uint64(1)<<(8*floatLowBytes) - 1
)

// AppendFloat64 appends the encoding of src to dst.
//
// Format: [uvarint len(high)][high: AppendInt32 of the top 24 bits][low: 5 bytes per value].
func AppendFloat64(dst []byte, src []float64, c Compression) []byte {
	high := make([]int32, len(src))
	for i, f := range src {
		high[i] = int32(math.Float64bits(f) >> floatLowShift)
	}
	enc := AppendInt32(nil, high, c)

	dst = binary.AppendUvarint(dst, uint64(len(enc)))
	dst = append(dst, enc...)
	for _, f := range src {
		low := math.Float64bits(f) & floatLowMask
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], low)
		dst = append(dst, tmp[:floatLowBytes]...)
	}
	return dst
}

// DecodeFloat64 decodes n values encoded by AppendFloat64, reusing dst.
func DecodeFloat64(dst []float64, src []byte, n int) ([]float64, error) {
	hlen, k := binary.Uvarint(src)
	if k <= 0 || uint64(len(src)-k) < hlen {
		return nil, fmt.Errorf("%w: bad float64 header", ErrCorrupt)
	}
	high, err := DecodeInt32(nil, src[k:k+int(hlen)], n)
	if err != nil {
		return nil, err
	}
	lows := src[k+int(hlen):]
	if len(lows) != n*floatLowBytes {
		return nil, fmt.Errorf("%w: float64 low slice %d bytes, want %d", ErrCorrupt, len(lows), n*floatLowBytes)
	}

	out := dst[:0]
	if cap(out) < n {
		out = make([]float64, 0, n)
	}
	for i := 0; i < n; i++ {
		var tmp [8]byte
		copy(tmp[:floatLowBytes], lows[i*floatLowBytes:])
		b := uint64(uint32(high[i]))<<floatLowShift | binary.LittleEndian.Uint64(tmp[:])
		out = append(out, math.Float64frombits(b))
	}
	return out, nil
}
