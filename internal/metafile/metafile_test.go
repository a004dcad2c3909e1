package metafile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/vinstore/internal/fs"
	"github.com/hupe1980/vinstore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMagic   = 0x54455354
	testVersion = 1
)

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta")

	enc := NewEncoder(64)
	enc.Uint8(7)
	enc.Uint16(513)
	enc.Uint32(70000)
	enc.Int64(-42)
	enc.String("speed")
	enc.Raw([]byte{1, 2, 3})
	enc.Append(model.StringValue("abc").AppendBinary)

	require.NoError(t, Write(fs.Default, path, testMagic, testVersion, enc.Bytes()))

	payload, err := Read(fs.Default, path, testMagic, testVersion)
	require.NoError(t, err)

	dec := NewDecoder(payload)
	assert.Equal(t, uint8(7), dec.Uint8())
	assert.Equal(t, uint16(513), dec.Uint16())
	assert.Equal(t, uint32(70000), dec.Uint32())
	assert.Equal(t, int64(-42), dec.Int64())
	assert.Equal(t, "speed", dec.String())
	assert.Equal(t, []byte{1, 2, 3}, dec.Raw(3))

	var v model.ColumnValue
	dec.Consume(func(b []byte) (int, error) {
		var (
			n   int
			err error
		)
		v, n, err = model.DecodeColumnValue(model.ColumnTypeString, b)
		return n, err
	})
	require.NoError(t, dec.Finish())
	assert.True(t, v.Equal(model.StringValue("abc")))
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(fs.Default, filepath.Join(t.TempDir(), "nope"), testMagic, testVersion)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRead_Corruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta")
	require.NoError(t, Write(fs.Default, path, testMagic, testVersion, []byte("payload")))

	_, err := Read(fs.Default, path, testMagic+1, testVersion)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Read(fs.Default, path, testMagic, testVersion+1)
	assert.ErrorIs(t, err, ErrCorrupt)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))
	_, err = Read(fs.Default, path, testMagic, testVersion)
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, os.WriteFile(path, data[:10], 0o644))
	_, err = Read(fs.Default, path, testMagic, testVersion)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecoder_StickyError(t *testing.T) {
	dec := NewDecoder([]byte{1, 2})
	assert.Equal(t, uint8(1), dec.Uint8())
	assert.Zero(t, dec.Uint16())
	assert.ErrorIs(t, dec.Err(), ErrCorrupt)
	assert.Zero(t, dec.Uint64())
	assert.ErrorIs(t, dec.Finish(), ErrCorrupt)
}

func TestDecoder_TrailingBytes(t *testing.T) {
	dec := NewDecoder([]byte{1, 2, 3})
	dec.Uint8()
	assert.ErrorIs(t, dec.Finish(), ErrCorrupt)
}
