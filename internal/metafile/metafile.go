package metafile

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/vinstore/internal/fs"
	"github.com/hupe1980/vinstore/internal/hash"
)

const headerSize = 16

// ErrCorrupt is returned when a file or payload fails a structural check.
var ErrCorrupt = errors.New("metafile: corrupt")

// Write atomically replaces path with a framed payload.
func Write(fsys fs.FileSystem, path string, magic, version uint32, payload []byte) error {
	buf := make([]byte, headerSize, headerSize+len(payload))
	binary.NativeEndian.PutUint32(buf[0:4], magic)
	binary.NativeEndian.PutUint32(buf[4:8], version)
	binary.NativeEndian.PutUint32(buf[8:12], hash.CRC32C(payload))
	binary.NativeEndian.PutUint32(buf[12:16], uint32(len(payload)))
	buf = append(buf, payload...)
	return fs.WriteFileAtomic(fsys, path, buf)
}

// Read loads path and returns its verified payload.
func Read(fsys fs.FileSystem, path string, magic, version uint32) ([]byte, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	return Unframe(data, magic, version)
}

// Unframe verifies a framed buffer and returns its payload.
func Unframe(data []byte, magic, version uint32) ([]byte, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: short header (%d bytes)", ErrCorrupt, len(data))
	}
	if m := binary.NativeEndian.Uint32(data[0:4]); m != magic {
		return nil, fmt.Errorf("%w: invalid magic %x", ErrCorrupt, m)
	}
	if v := binary.NativeEndian.Uint32(data[4:8]); v != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	checksum := binary.NativeEndian.Uint32(data[8:12])
	length := binary.NativeEndian.Uint32(data[12:16])
	payload := data[headerSize:]
	if uint64(len(payload)) != uint64(length) {
		return nil, fmt.Errorf("%w: payload %d bytes, header says %d", ErrCorrupt, len(payload), length)
	}
	if hash.CRC32C(payload) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return payload, nil
}
