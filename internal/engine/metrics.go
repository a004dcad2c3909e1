package engine

import "time"

// MetricsObserver defines the interface for observing engine events.
type MetricsObserver interface {
	// OnWrite is called after each write request.
	OnWrite(duration time.Duration, rows int, err error)

	// OnQuery is called after each query. kind is one of "latest", "range",
	// "aggregate" or "downsample".
	OnQuery(kind string, duration time.Duration, rows int, err error)

	// OnFlush is called when a shard flushed a block, or failed to.
	OnFlush(duration time.Duration, rows int, bytes int64, err error)
}

// NoopMetricsObserver is a no-op implementation of MetricsObserver.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnWrite(time.Duration, int, error)         {}
func (NoopMetricsObserver) OnQuery(string, time.Duration, int, error) {}
func (NoopMetricsObserver) OnFlush(time.Duration, int, int64, error)  {}
