package vinstore

import (
	"context"
	"runtime"
	"time"

	"github.com/hupe1980/vinstore/internal/engine"
	"github.com/hupe1980/vinstore/internal/resource"
	"github.com/hupe1980/vinstore/model"
)

const (
	// ShardCount is the number of shards every data directory is split into.
	ShardCount = engine.ShardCount

	// MaxVins is the number of distinct vins a data directory can hold.
	MaxVins = engine.MaxVins
)

// DB is an open data directory. Safe for concurrent use.
type DB struct {
	eng    *engine.Engine
	dir    string
	logger *Logger
}

// Connect opens the data directory dir, creating it on first use. Persisted
// state is loaded; a directory without state starts empty. A directory
// already opened by another DB fails with ErrIO, persisted files that fail
// their checks with ErrCorrupt.
func Connect(dir string, optFns ...Option) (*DB, error) {
	o := applyOptions(optFns)
	if o.err != nil {
		return nil, o.err
	}

	var rc *resource.Controller
	if o.backgroundWorkers > 0 || o.memoryLimit > 0 || o.flushIORate > 0 {
		workers := o.backgroundWorkers
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		rc = resource.NewController(resource.Config{
			MemoryLimitBytes:     o.memoryLimit,
			MaxBackgroundWorkers: int64(workers),
			IOLimitBytesPerSec:   o.flushIORate,
		})
	}

	engOpts := []engine.Option{
		engine.WithLogger(o.logger.Logger),
		engine.WithMetricsObserver(observer{mc: o.metricsCollector}),
		engine.WithCompression(o.compression),
		engine.WithMemTableRows(o.memTableRows),
		engine.WithReadCacheSize(o.readCacheSize),
		engine.WithWriteBufferSize(o.writeBufferSize),
	}
	if rc != nil {
		engOpts = append(engOpts, engine.WithResourceController(rc))
	}
	if o.fs != nil {
		engOpts = append(engOpts, engine.WithFileSystem(o.fs))
	}

	eng, err := engine.Open(dir, engOpts...)
	if err != nil {
		return nil, translateError(err)
	}
	return &DB{
		eng:    eng,
		dir:    dir,
		logger: o.logger,
	}, nil
}

// CreateTable defines the single table of the directory. Calling it again with
// the same name and schema is a no-op; anything else is ErrInvalidArgument.
func (db *DB) CreateTable(ctx context.Context, name string, schema model.Schema) error {
	err := translateError(db.eng.CreateTable(ctx, name, schema))
	if err != nil {
		db.logger.ErrorContext(ctx, "create table failed", "table", name, "error", err)
	}
	return err
}

// TableID returns the table's unique id, or false before CreateTable.
func (db *DB) TableID() (string, bool) {
	return db.eng.TableID()
}

// Schema returns the table schema, or false before CreateTable.
func (db *DB) Schema() (model.Schema, bool) {
	return db.eng.Schema()
}

// Write stores the rows of req. Every row must carry exactly the schema's
// columns; a malformed row rejects the whole request before anything is stored.
func (db *DB) Write(ctx context.Context, req model.WriteRequest) error {
	start := time.Now()
	err := translateError(db.eng.Write(ctx, req))
	db.logger.LogWrite(ctx, len(req.Rows), time.Since(start), err)
	return err
}

// ExecuteLatestQuery returns the newest row of each requested vin, in request
// order. Vins never written are skipped.
func (db *DB) ExecuteLatestQuery(ctx context.Context, req model.LatestQueryRequest) ([]model.Row, error) {
	start := time.Now()
	rows, err := db.eng.LatestQuery(ctx, req)
	err = translateError(err)
	db.logger.LogQuery(ctx, QueryLatest, len(rows), time.Since(start), err)
	return rows, err
}

// ExecuteTimeRangeQuery returns the rows of one vin with
// LowerBound <= ts < UpperBound ordered by timestamp. An unknown vin is
// ErrNotFound.
func (db *DB) ExecuteTimeRangeQuery(ctx context.Context, req model.TimeRangeQueryRequest) ([]model.Row, error) {
	start := time.Now()
	rows, err := db.eng.TimeRangeQuery(ctx, req)
	err = translateError(err)
	db.logger.LogQuery(ctx, QueryRange, len(rows), time.Since(start), err)
	return rows, err
}

// ExecuteAggregateQuery aggregates one column of one vin over the range.
//
// The result is empty when the vin has no rows in the range. Otherwise it is a
// single row stamped with LowerBound; if the filter rejected every row the
// value is the NaN sentinel of the result type (model.IntNaN or IEEE NaN).
// AVG always yields a Double, MAX the column's type.
func (db *DB) ExecuteAggregateQuery(ctx context.Context, req model.TimeRangeAggregationRequest) ([]model.Row, error) {
	start := time.Now()
	rows, err := db.eng.AggregateQuery(ctx, req)
	err = translateError(err)
	db.logger.LogQuery(ctx, QueryAggregate, len(rows), time.Since(start), err)
	return rows, err
}

// ExecuteDownsampleQuery aggregates one column per Interval-wide window
// starting at LowerBound. Each row carries its window's start. Windows
// without rows are omitted; windows whose rows all failed the filter yield
// the NaN sentinel.
func (db *DB) ExecuteDownsampleQuery(ctx context.Context, req model.TimeRangeDownsampleRequest) ([]model.Row, error) {
	start := time.Now()
	rows, err := db.eng.DownsampleQuery(ctx, req)
	err = translateError(err)
	db.logger.LogQuery(ctx, QueryDownsample, len(rows), time.Since(start), err)
	return rows, err
}

// Flush writes every buffered row to the data files. With sync the files are
// synced too. Shutdown flushes on its own; Flush is only needed to bound the
// memory of idle shards.
func (db *DB) Flush(ctx context.Context, sync bool) error {
	return translateError(db.eng.Flush(ctx, sync))
}

// Shutdown persists all state and releases the directory. It must be called
// exactly once; later calls and all other methods return ErrClosed.
func (db *DB) Shutdown(ctx context.Context) error {
	err := translateError(db.eng.Shutdown(ctx))
	db.logger.LogShutdown(ctx, db.dir, err)
	return err
}

// ShardStats is a point-in-time view of one shard.
type ShardStats struct {
	Blocks       int
	MemTableRows int
	CacheEntries int
	CacheBytes   int64
	DataBytes    uint64
}

// Stats is a point-in-time view of the database.
type Stats struct {
	Vins         int
	Blocks       int
	MemTableRows int
	CacheEntries int
	CacheBytes   int64
	CacheHits    int64
	CacheMisses  int64
	DataBytes    uint64
	MemoryUsage  int64
	MemoryLimit  int64 // 0 if unlimited
	Workers      int   // background worker slots
	Shards       []ShardStats
}

// Stats returns the database counters.
func (db *DB) Stats() Stats {
	es := db.eng.Stats()
	st := Stats{
		Vins:         es.Vins,
		Blocks:       es.Blocks,
		MemTableRows: es.MemTableRows,
		CacheEntries: es.CacheEntries,
		CacheBytes:   es.CacheBytes,
		CacheHits:    es.CacheHits,
		CacheMisses:  es.CacheMisses,
		DataBytes:    es.DataBytes,
		MemoryUsage:  es.MemoryUsage,
		MemoryLimit:  es.MemoryLimit,
		Workers:      es.Workers,
		Shards:       make([]ShardStats, len(es.Shards)),
	}
	for i, s := range es.Shards {
		st.Shards[i] = ShardStats{
			Blocks:       s.Blocks,
			MemTableRows: s.MemTableRows,
			CacheEntries: s.CacheEntries,
			CacheBytes:   s.CacheBytes,
			DataBytes:    s.DataBytes,
		}
	}
	return st
}
