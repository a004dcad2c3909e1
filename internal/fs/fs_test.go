package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0o755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())

	info, err := f.Stat()
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
	assert.NoError(t, f.Close())

	newPath := filepath.Join(dir, "renamed.txt")
	assert.NoError(t, lfs.Rename(fpath, newPath))

	data, err := ReadFile(lfs, newPath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	assert.NoError(t, lfs.Remove(newPath))
	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta")

	require.NoError(t, WriteFileAtomic(Default, path, []byte("v1")))
	require.NoError(t, WriteFileAtomic(Default, path, []byte("v2")))

	data, err := ReadFile(Default, path)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWriteFileAtomic_FailureKeepsOldContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta")
	require.NoError(t, WriteFileAtomic(Default, path, []byte("old")))

	ffs := NewFaultyFS(nil)
	ffs.AddRule("meta", Fault{FailOnSync: true, FailAfterBytes: -1})

	err := WriteFileAtomic(ffs, path, []byte("new"))
	require.ErrorIs(t, err, ErrInjected)

	data, err := ReadFile(Default, path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestFaultyFS_FailAfterBytes(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule("data", Fault{FailAfterBytes: 4})

	f, err := ffs.OpenFile(filepath.Join(t.TempDir(), "data"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("abcd"))
	require.NoError(t, err)
	_, err = f.Write([]byte("e"))
	assert.ErrorIs(t, err, ErrInjected)
}

func TestFaultyFS_ShortWrite(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule("data", Fault{FailAfterBytes: 3, ShortWrite: true})

	path := filepath.Join(t.TempDir(), "data")
	f, err := ffs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("abcdef"))
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 3, n)

	require.NoError(t, f.Truncate(1))
	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Size())
}

func TestFaultyFS_NoRulePassesThrough(t *testing.T) {
	ffs := NewFaultyFS(nil)
	ffs.AddRule("other", Fault{FailOnOpen: true})

	f, err := ffs.OpenFile(filepath.Join(t.TempDir(), "data"), os.O_CREATE|os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte("payload"))
	assert.NoError(t, err)
	assert.NoError(t, f.Close())

	_, err = ffs.OpenFile("/nonexistent/other", os.O_RDONLY, 0)
	assert.ErrorIs(t, err, ErrInjected)
}

func TestLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOCK")

	l, err := Default.Lock(path)
	require.NoError(t, err)

	_, err = Default.Lock(path)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, l.Close())

	l2, err := Default.Lock(path)
	require.NoError(t, err)
	assert.NoError(t, l2.Close())
}
