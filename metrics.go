package vinstore

import (
	"sync/atomic"
	"time"
)

// Query kinds passed to MetricsCollector.RecordQuery.
const (
	QueryLatest     = "latest"
	QueryRange      = "range"
	QueryAggregate  = "aggregate"
	QueryDownsample = "downsample"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the metric
// package ships a Prometheus implementation.
type MetricsCollector interface {
	// RecordWrite is called after each write request with the number of rows
	// it carried.
	RecordWrite(rows int, duration time.Duration, err error)

	// RecordQuery is called after each query. kind is one of the Query* constants,
	// results is the number of returned rows.
	RecordQuery(kind string, results int, duration time.Duration, err error)

	// RecordFlush is called after a shard wrote a block to its data file.
	RecordFlush(rows int, bytes int64, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordWrite(int, time.Duration, error)         {}
func (NoopMetricsCollector) RecordQuery(string, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordFlush(int, int64, time.Duration, error)  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	WriteCount      atomic.Int64
	WriteRows       atomic.Int64
	WriteErrors     atomic.Int64
	WriteTotalNanos atomic.Int64
	QueryCount      atomic.Int64
	QueryResults    atomic.Int64
	QueryErrors     atomic.Int64
	QueryTotalNanos atomic.Int64
	FlushCount      atomic.Int64
	FlushRows       atomic.Int64
	FlushBytes      atomic.Int64
	FlushErrors     atomic.Int64
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(rows int, duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
		return
	}
	b.WriteRows.Add(int64(rows))
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(_ string, results int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	b.QueryResults.Add(int64(results))
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(rows int, bytes int64, _ time.Duration, err error) {
	b.FlushCount.Add(1)
	if err != nil {
		b.FlushErrors.Add(1)
		return
	}
	b.FlushRows.Add(int64(rows))
	b.FlushBytes.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		WriteCount:    b.WriteCount.Load(),
		WriteRows:     b.WriteRows.Load(),
		WriteErrors:   b.WriteErrors.Load(),
		WriteAvgNanos: avg(b.WriteTotalNanos.Load(), b.WriteCount.Load()),
		QueryCount:    b.QueryCount.Load(),
		QueryResults:  b.QueryResults.Load(),
		QueryErrors:   b.QueryErrors.Load(),
		QueryAvgNanos: avg(b.QueryTotalNanos.Load(), b.QueryCount.Load()),
		FlushCount:    b.FlushCount.Load(),
		FlushRows:     b.FlushRows.Load(),
		FlushBytes:    b.FlushBytes.Load(),
		FlushErrors:   b.FlushErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	WriteCount    int64
	WriteRows     int64
	WriteErrors   int64
	WriteAvgNanos int64
	QueryCount    int64
	QueryResults  int64
	QueryErrors   int64
	QueryAvgNanos int64
	FlushCount    int64
	FlushRows     int64
	FlushBytes    int64
	FlushErrors   int64
}

// observer adapts a MetricsCollector to the engine's observer interface.
type observer struct {
	mc MetricsCollector
}

func (o observer) OnWrite(duration time.Duration, rows int, err error) {
	o.mc.RecordWrite(rows, duration, err)
}

func (o observer) OnQuery(kind string, duration time.Duration, rows int, err error) {
	o.mc.RecordQuery(kind, rows, duration, err)
}

func (o observer) OnFlush(duration time.Duration, rows int, bytes int64, err error) {
	o.mc.RecordFlush(rows, bytes, duration, err)
}
