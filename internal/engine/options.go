package engine

import (
	"log/slog"

	"github.com/hupe1980/vinstore/internal/codec"
	"github.com/hupe1980/vinstore/internal/fs"
	"github.com/hupe1980/vinstore/internal/resource"
)

// Option defines a configuration option for the Engine.
type Option func(*Engine)

// WithLogger sets the logger for the engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetricsObserver sets the metrics observer for the engine.
func WithMetricsObserver(observer MetricsObserver) Option {
	return func(e *Engine) {
		e.metrics = observer
	}
}

// WithResourceController sets the resource controller shared by all shards.
func WithResourceController(rc *resource.Controller) Option {
	return func(e *Engine) {
		e.rc = rc
	}
}

// WithMemTableRows sets the per-shard memtable capacity in rows.
func WithMemTableRows(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.memTableRows = n
		}
	}
}

// WithReadCacheSize sets the per-shard read cache capacity in bytes.
func WithReadCacheSize(bytes int64) Option {
	return func(e *Engine) {
		if bytes > 0 {
			e.cacheBytes = bytes
		}
	}
}

// WithWriteBufferSize sets the per-shard write buffer size in bytes. It must be a
// multiple of 4 KiB.
func WithWriteBufferSize(bytes int) Option {
	return func(e *Engine) {
		if bytes > 0 {
			e.bufferSize = bytes
		}
	}
}

// WithCompression selects the fallback compressor for new blocks.
func WithCompression(c codec.Compression) Option {
	return func(e *Engine) {
		e.compression = c
	}
}

// WithFileSystem sets the file system for the engine.
// This is primarily used for testing and fault injection.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(e *Engine) {
		e.fs = fsys
	}
}
