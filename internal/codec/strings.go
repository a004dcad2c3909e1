package codec

import (
	"encoding/binary"
	"fmt"
)

// AppendStrings appends the encoding of n strings given as per-row lengths and the
// concatenated payload. Lengths and payload are compressed together.
func AppendStrings(dst []byte, lengths []uint32, payload []byte, c Compression) []byte {
	raw := make([]byte, 0, 4*len(lengths)+len(payload))
	for _, l := range lengths {
		raw = binary.LittleEndian.AppendUint32(raw, l)
	}
	raw = append(raw, payload...)
	return AppendGeneric(dst, raw, c)
}

// DecodeStrings decodes n strings encoded by AppendStrings and returns the per-row
// lengths and the concatenated payload. maxLen bounds the decoded size of
// lengths and payload together.
func DecodeStrings(src []byte, n, maxLen int) ([]uint32, []byte, error) {
	raw, err := DecodeGeneric(nil, src, maxLen)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) < 4*n {
		return nil, nil, fmt.Errorf("%w: string length table truncated", ErrCorrupt)
	}
	lengths := make([]uint32, n)
	var total uint64
	for i := range lengths {
		lengths[i] = binary.LittleEndian.Uint32(raw[4*i:])
		total += uint64(lengths[i])
	}
	payload := raw[4*n:]
	if uint64(len(payload)) != total {
		return nil, nil, fmt.Errorf("%w: string payload %d bytes, want %d", ErrCorrupt, len(payload), total)
	}
	return lengths, payload, nil
}
