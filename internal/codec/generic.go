package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the generic fallback compressor used when a specialized
// codec declines.
type Compression uint8

const (
	// CompressionZSTD compresses with zstd (default, best ratio).
	CompressionZSTD Compression = iota
	// CompressionLZ4 compresses with LZ4 block format (fastest decode).
	CompressionLZ4
	// CompressionSnappy compresses with snappy.
	CompressionSnappy
)

// String implements fmt.Stringer.
func (c Compression) String() string {
	switch c {
	case CompressionZSTD:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	case CompressionSnappy:
		return "snappy"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses the names returned by Compression.String.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "zstd":
		return CompressionZSTD, nil
	case "lz4":
		return CompressionLZ4, nil
	case "snappy":
		return CompressionSnappy, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

// Tag bytes. Values are part of the on-disk format.
const (
	tagConst  byte = 0x01
	tagPacked byte = 0x02
	tagRaw    byte = 0x10
	tagZSTD   byte = 0x11
	tagLZ4    byte = 0x12
	tagSnappy byte = 0x13
)

// ErrCorrupt is returned when encoded input is malformed.
var ErrCorrupt = errors.New("codec: corrupt input")

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	return enc
}

func putZstdEncoder(enc *zstd.Encoder) {
	zstdEncoderPool.Put(enc)
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecodeAllCapLimit(true),
	)
	return dec
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// AppendGeneric appends a self-describing generic frame for raw to dst.
// Format: [tag][uvarint len(raw)][payload].
func AppendGeneric(dst, raw []byte, c Compression) []byte {
	if len(raw) == 0 {
		dst = append(dst, tagRaw)
		return binary.AppendUvarint(dst, 0)
	}

	var (
		tag     byte
		payload []byte
	)
	switch c {
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, buf, nil)
		if err == nil && n > 0 {
			tag, payload = tagLZ4, buf[:n]
		}
	case CompressionSnappy:
		tag, payload = tagSnappy, snappy.Encode(nil, raw)
	default:
		enc := getZstdEncoder()
		payload = enc.EncodeAll(raw, nil)
		putZstdEncoder(enc)
		tag = tagZSTD
	}

	// Incompressible input is stored as is.
	if payload == nil || len(payload) >= len(raw) {
		tag, payload = tagRaw, raw
	}

	dst = append(dst, tag)
	dst = binary.AppendUvarint(dst, uint64(len(raw)))
	return append(dst, payload...)
}

// DecodeGeneric decodes a frame written by AppendGeneric. src must hold exactly one frame.
// A frame that claims to decode to more than maxLen bytes is corrupt.
func DecodeGeneric(dst, src []byte, maxLen int) ([]byte, error) {
	if len(src) < 2 {
		return nil, fmt.Errorf("%w: generic frame too short", ErrCorrupt)
	}
	tag := src[0]
	rawLen, n := binary.Uvarint(src[1:])
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad generic length", ErrCorrupt)
	}
	if maxLen < 0 || rawLen > uint64(maxLen) {
		return nil, fmt.Errorf("%w: generic frame claims %d bytes, limit %d", ErrCorrupt, rawLen, maxLen)
	}
	payload := src[1+n:]

	switch tag {
	case tagRaw:
		if uint64(len(payload)) != rawLen {
			return nil, fmt.Errorf("%w: raw frame size mismatch", ErrCorrupt)
		}
		return append(dst[:0], payload...), nil
	case tagZSTD:
		dec := getZstdDecoder()
		defer putZstdDecoder(dec)
		out, err := dec.DecodeAll(payload, grow(dst[:0], int(rawLen))[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint64(len(out)) != rawLen {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	case tagLZ4:
		out := grow(dst[:0], int(rawLen))
		m, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint64(m) != rawLen {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	case tagSnappy:
		out, err := snappy.Decode(grow(dst[:0], int(rawLen)), payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint64(len(out)) != rawLen {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrCorrupt, tag)
	}
}

func grow(b []byte, n int) []byte {
	if cap(b) >= n {
		return b[:n]
	}
	return make([]byte, n)
}
