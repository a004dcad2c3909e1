// Package metric provides a Prometheus implementation of vinstore.MetricsCollector.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/vinstore"
)

var _ vinstore.MetricsCollector = (*PrometheusCollector)(nil)

// PrometheusCollector records vinstore operations as Prometheus metrics.
type PrometheusCollector struct {
	opLatency    *prometheus.HistogramVec
	ops          *prometheus.CounterVec
	writeRows    prometheus.Counter
	queryRows    *prometheus.CounterVec
	flushes      *prometheus.CounterVec
	flushRows    prometheus.Counter
	flushBytes   prometheus.Counter
	flushLatency prometheus.Histogram
}

// NewPrometheusCollector creates the collector and registers its metrics with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vinstore_operation_latency_seconds",
			Help:    "Latency of write and query operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vinstore_operations_total",
			Help: "Total write and query operations",
		}, []string{"op", "status"}),
		writeRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vinstore_written_rows_total",
			Help: "Total rows stored",
		}),
		queryRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vinstore_query_rows_total",
			Help: "Total rows returned by queries",
		}, []string{"op"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vinstore_flushes_total",
			Help: "Total memtable flushes",
		}, []string{"status"}),
		flushRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vinstore_flushed_rows_total",
			Help: "Total rows written as blocks",
		}),
		flushBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vinstore_flushed_bytes_total",
			Help: "Total compressed bytes appended to data files",
		}),
		flushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vinstore_flush_latency_seconds",
			Help:    "Latency of memtable flushes",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
	reg.MustRegister(
		c.opLatency,
		c.ops,
		c.writeRows,
		c.queryRows,
		c.flushes,
		c.flushRows,
		c.flushBytes,
		c.flushLatency,
	)
	return c
}

func status(err error) string {
	if err != nil {
		return vinstore.CodeOf(err).String()
	}
	return "ok"
}

// RecordWrite implements vinstore.MetricsCollector.
func (c *PrometheusCollector) RecordWrite(rows int, duration time.Duration, err error) {
	c.opLatency.WithLabelValues("write").Observe(duration.Seconds())
	c.ops.WithLabelValues("write", status(err)).Inc()
	if err == nil {
		c.writeRows.Add(float64(rows))
	}
}

// RecordQuery implements vinstore.MetricsCollector.
func (c *PrometheusCollector) RecordQuery(kind string, results int, duration time.Duration, err error) {
	c.opLatency.WithLabelValues(kind).Observe(duration.Seconds())
	c.ops.WithLabelValues(kind, status(err)).Inc()
	c.queryRows.WithLabelValues(kind).Add(float64(results))
}

// RecordFlush implements vinstore.MetricsCollector.
func (c *PrometheusCollector) RecordFlush(rows int, bytes int64, duration time.Duration, err error) {
	c.flushLatency.Observe(duration.Seconds())
	c.flushes.WithLabelValues(status(err)).Inc()
	if err == nil {
		c.flushRows.Add(float64(rows))
		c.flushBytes.Add(float64(bytes))
	}
}
