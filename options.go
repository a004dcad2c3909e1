package vinstore

import (
	"log/slog"

	"github.com/hupe1980/vinstore/internal/codec"
	"github.com/hupe1980/vinstore/internal/fs"
)

// Compression selects the fallback compressor for column payloads that the
// specialized codecs do not handle well. Data written with any choice stays
// readable after switching.
type Compression = codec.Compression

const (
	CompressionZSTD   = codec.CompressionZSTD
	CompressionLZ4    = codec.CompressionLZ4
	CompressionSnappy = codec.CompressionSnappy
)

// ParseCompression parses "zstd", "lz4" or "snappy".
func ParseCompression(s string) (Compression, error) {
	return codec.ParseCompression(s)
}

type options struct {
	logger            *Logger
	metricsCollector  MetricsCollector
	memTableRows      int
	readCacheSize     int64
	writeBufferSize   int
	memoryLimit       int64
	flushIORate       int64
	backgroundWorkers int
	compression       Compression
	fs                fs.FileSystem
	err               error
}

// Option configures Connect.
type Option func(*options)

// WithLogger configures structured logging. Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vinstore.NewJSONLogger(slog.LevelInfo)
//	db, _ := vinstore.Connect("./data", vinstore.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vinstore.BasicMetricsCollector{}
//	db, _ := vinstore.Connect("./data", vinstore.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Writes: %d, Avg latency: %dns\n", stats.WriteCount, stats.WriteAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithMemTableRows sets how many rows each shard buffers before writing a block.
// Default 8192.
func WithMemTableRows(n int) Option {
	return func(o *options) {
		o.memTableRows = n
	}
}

// WithReadCacheSize sets the per-shard cache of decompressed block columns in
// bytes. Default 32 MiB.
func WithReadCacheSize(bytes int64) Option {
	return func(o *options) {
		o.readCacheSize = bytes
	}
}

// WithWriteBufferSize sets the per-shard data file write buffer. It must be a
// multiple of 4 KiB. Default 1 MiB.
func WithWriteBufferSize(bytes int) Option {
	return func(o *options) {
		o.writeBufferSize = bytes
	}
}

// WithMemoryLimit caps the memory held by all read caches together.
// 0 means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithFlushIORate throttles block writes to bytes per second. 0 means unlimited.
func WithFlushIORate(bytesPerSec int64) Option {
	return func(o *options) {
		o.flushIORate = bytesPerSec
	}
}

// WithBackgroundWorkers bounds how many shards are loaded, flushed or persisted
// in parallel. Defaults to GOMAXPROCS.
func WithBackgroundWorkers(n int) Option {
	return func(o *options) {
		o.backgroundWorkers = n
	}
}

// WithCompression selects the fallback compressor for new blocks.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// withFileSystem replaces the file system, for fault injection in tests.
func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fs = fsys
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		compression:      CompressionZSTD,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
