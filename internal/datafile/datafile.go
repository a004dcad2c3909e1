// Package datafile implements a shard's append-only data file with an aligned
// in-memory write buffer.
//
// Column payloads are appended back to back. They become durable when the buffer
// fills (whole buffers are written) or when Sync pads the tail to the alignment
// and writes it. Reads of ranges that are still buffered are served from memory;
// ranges straddling the boundary are stitched from both.
package datafile

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/vinstore/internal/fs"
	"github.com/hupe1980/vinstore/internal/resource"
)

const (
	// DefaultBufferSize is the write buffer size.
	DefaultBufferSize = 1 << 20
	// Alignment is the granularity of every write to the file.
	Alignment = 4 << 10
)

// ErrOutOfRange is returned for reads beyond the logical end of the file.
var ErrOutOfRange = errors.New("datafile: read out of range")

// File is an append-only data file. Append and Sync must be serialized by the
// caller; ReadAt may run concurrently with other reads.
type File struct {
	f       fs.File
	rc      *resource.Controller
	bufSize int

	buf     []byte
	flushed uint64 // bytes already written to the file
	err     error  // sticky: a failed write could not be rolled back
}

// Options configures a File.
type Options struct {
	BufferSize int
	Resource   *resource.Controller
}

// Open opens or creates the data file at path. Appends continue after the
// current end of the file.
func Open(fsys fs.FileSystem, path string, opts Options) (*File, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.BufferSize%Alignment != 0 {
		return nil, fmt.Errorf("datafile: buffer size %d is not a multiple of %d", opts.BufferSize, Alignment)
	}

	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return &File{
		f:       f,
		rc:      opts.Resource,
		bufSize: opts.BufferSize,
		buf:     make([]byte, 0, opts.BufferSize),
		flushed: uint64(info.Size()),
	}, nil
}

// Size returns the logical size: written bytes plus buffered bytes.
func (df *File) Size() uint64 {
	return df.flushed + uint64(len(df.buf))
}

// Flushed returns the number of bytes written to the file.
func (df *File) Flushed() uint64 {
	return df.flushed
}

// Append buffers p and returns its offset. Full buffers are written out.
func (df *File) Append(ctx context.Context, p []byte) (uint64, error) {
	off := df.Size()
	df.buf = append(df.buf, p...)

	if full := len(df.buf) / df.bufSize * df.bufSize; full > 0 {
		if err := df.write(ctx, df.buf[:full]); err != nil {
			df.buf = df.buf[:len(df.buf)-len(p)]
			return 0, err
		}
		rest := copy(df.buf, df.buf[full:])
		df.buf = df.buf[:rest]
	}
	return off, nil
}

// Sync pads the buffered tail to the alignment, writes it and syncs the file.
func (df *File) Sync(ctx context.Context) error {
	if n := len(df.buf); n > 0 {
		padded := (n + Alignment - 1) / Alignment * Alignment
		df.buf = append(df.buf, make([]byte, padded-n)...)
		if err := df.write(ctx, df.buf); err != nil {
			df.buf = df.buf[:n]
			return err
		}
		df.buf = df.buf[:0]
	}
	return df.f.Sync()
}

// write appends p to the file. On failure the file is truncated back to
// flushed so the bytes, which stay buffered, keep their offsets.
func (df *File) write(ctx context.Context, p []byte) error {
	if df.err != nil {
		return df.err
	}
	if err := df.rc.AcquireIO(ctx, len(p)); err != nil {
		return err
	}
	n, err := df.f.Write(p)
	if err == nil && n == len(p) {
		df.flushed += uint64(n)
		return nil
	}
	if err == nil {
		err = fmt.Errorf("datafile: short write %d of %d bytes", n, len(p))
	}
	if n > 0 {
		if terr := df.f.Truncate(int64(df.flushed)); terr != nil {
			df.err = fmt.Errorf("datafile: roll back short write: %w", terr)
			return errors.Join(err, df.err)
		}
	}
	return err
}

// ReadAt returns a copy of size bytes at off, from the file, the write buffer,
// or both.
func (df *File) ReadAt(off uint64, size int) ([]byte, error) {
	end := off + uint64(size)
	if end > df.Size() {
		return nil, fmt.Errorf("%w: [%d, %d) beyond %d", ErrOutOfRange, off, end, df.Size())
	}
	out := make([]byte, size)

	onDisk := 0
	if off < df.flushed {
		onDisk = int(min(end, df.flushed) - off)
		if _, err := df.f.ReadAt(out[:onDisk], int64(off)); err != nil {
			return nil, err
		}
	}
	if onDisk < size {
		start := off + uint64(onDisk) - df.flushed
		copy(out[onDisk:], df.buf[start:])
	}
	return out, nil
}

// Close releases the file handle. Buffered bytes that were not synced are dropped.
func (df *File) Close() error {
	return df.f.Close()
}
