package engine

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/hupe1980/vinstore/internal/shard"
	"github.com/hupe1980/vinstore/model"
)

// LatestQuery returns the newest row of each requested vin in request order.
// Vins that were never written are skipped.
func (e *Engine) LatestQuery(ctx context.Context, req model.LatestQueryRequest) (rows []model.Row, err error) {
	start := time.Now()
	defer func() { e.metrics.OnQuery("latest", time.Since(start), len(rows), err) }()

	if e.closed.Load() {
		return nil, ErrClosed
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	schema, shards, err := e.table(req.Table)
	if err != nil {
		return nil, err
	}
	proj, err := projection(schema, req.Columns)
	if err != nil {
		return nil, err
	}

	rows = make([]model.Row, 0, len(req.Vins))
	for _, vin := range req.Vins {
		vid, ok := e.vins.Lookup(vin)
		if !ok {
			continue
		}
		row, ok := shards[vid&(ShardCount-1)].Latest(vid, proj)
		if !ok {
			continue
		}
		row.Vin = vin
		rows = append(rows, row)
	}
	return rows, nil
}

// TimeRangeQuery returns every row of the vin with lower <= ts < upper,
// ordered by timestamp.
func (e *Engine) TimeRangeQuery(ctx context.Context, req model.TimeRangeQueryRequest) (rows []model.Row, err error) {
	start := time.Now()
	defer func() { e.metrics.OnQuery("range", time.Since(start), len(rows), err) }()

	if e.closed.Load() {
		return nil, ErrClosed
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	schema, shards, err := e.table(req.Table)
	if err != nil {
		return nil, err
	}
	proj, err := projection(schema, req.Columns)
	if err != nil {
		return nil, err
	}
	return e.fetch(shards, req.Vin, req.LowerBound, req.UpperBound, proj)
}

// fetch resolves vin and collects its rows in [lower, upper) sorted by timestamp.
func (e *Engine) fetch(shards []*shard.Shard, vin model.Vin, lower, upper int64, proj []int) ([]model.Row, error) {
	vid, ok := e.vins.Lookup(vin)
	if !ok {
		return nil, fmt.Errorf("%w: vin %s", ErrNotFound, vin)
	}
	rows, err := shards[vid&(ShardCount-1)].RowsInRange(vid, lower, upper, proj)
	if err != nil {
		e.logger.Error("range read failed", "vin", vin.String(), "error", err)
		return nil, classify(err)
	}
	slices.SortStableFunc(rows, func(a, b model.Row) int { return cmp.Compare(a.Timestamp, b.Timestamp) })
	for i := range rows {
		rows[i].Vin = vin
	}
	return rows, nil
}

// aggregation is a validated aggregate or downsample request.
type aggregation struct {
	column string
	typ    model.ColumnType
	agg    model.Aggregator
	filter *model.CompareExpression
	bound  float64 // numeric filter literal
}

func newAggregation(schema model.Schema, name string, agg model.Aggregator, filter *model.CompareExpression) (*aggregation, int, error) {
	idx := schema.Index(name)
	if idx < 0 {
		return nil, 0, invalidf("unknown column %q", name)
	}
	typ := schema.Columns[idx].Type
	if typ == model.ColumnTypeString {
		return nil, 0, invalidf("cannot aggregate string column %q", name)
	}
	if agg != model.AggregatorAvg && agg != model.AggregatorMax {
		return nil, 0, invalidf("unknown aggregator %d", agg)
	}

	a := &aggregation{column: name, typ: typ, agg: agg, filter: filter}
	if filter != nil {
		if filter.Op != model.CompareEqual && filter.Op != model.CompareGreater {
			return nil, 0, invalidf("unknown compare operator %d", filter.Op)
		}
		f, ok := filter.Value.Float()
		if !ok {
			return nil, 0, invalidf("filter on %q needs a numeric literal, have %s", name, filter.Value.Type())
		}
		a.bound = f
	}
	return a, idx, nil
}

func (a *aggregation) keep(v float64) bool {
	if a.filter == nil {
		return true
	}
	if a.filter.Op == model.CompareEqual {
		return v == a.bound
	}
	return v > a.bound
}

// apply aggregates the column over rows. Rows rejected by the filter are
// skipped; if none pass, the type's NaN sentinel is returned.
func (a *aggregation) apply(rows []model.Row) model.ColumnValue {
	var (
		n    int
		sum  float64
		maxF = math.Inf(-1)
		maxI = int32(math.MinInt32)
	)
	for _, r := range rows {
		cv := r.Columns[a.column]
		v, _ := cv.Float()
		if !a.keep(v) {
			continue
		}
		n++
		sum += v
		if v > maxF {
			maxF = v
		}
		if i, err := cv.Int(); err == nil && i > maxI {
			maxI = i
		}
	}

	switch {
	case n == 0 && a.agg == model.AggregatorAvg:
		return model.DoubleValue(model.DoubleNaN)
	case n == 0:
		return model.NaNValue(a.typ)
	case a.agg == model.AggregatorAvg:
		return model.DoubleValue(sum / float64(n))
	case a.typ == model.ColumnTypeInteger:
		return model.IntValue(maxI)
	default:
		return model.DoubleValue(maxF)
	}
}

func (a *aggregation) row(vin model.Vin, ts int64, v model.ColumnValue) model.Row {
	return model.Row{Vin: vin, Timestamp: ts, Columns: map[string]model.ColumnValue{a.column: v}}
}

// AggregateQuery aggregates one column over [lower, upper). It returns no row
// when the vin has no rows in the range, otherwise a single row stamped with
// the lower bound.
func (e *Engine) AggregateQuery(ctx context.Context, req model.TimeRangeAggregationRequest) (rows []model.Row, err error) {
	start := time.Now()
	defer func() { e.metrics.OnQuery("aggregate", time.Since(start), len(rows), err) }()

	if e.closed.Load() {
		return nil, ErrClosed
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	schema, shards, err := e.table(req.Table)
	if err != nil {
		return nil, err
	}
	a, idx, err := newAggregation(schema, req.Column, req.Aggregator, req.Filter)
	if err != nil {
		return nil, err
	}
	in, err := e.fetch(shards, req.Vin, req.LowerBound, req.UpperBound, []int{idx})
	if err != nil || len(in) == 0 {
		return nil, err
	}
	return []model.Row{a.row(req.Vin, req.LowerBound, a.apply(in))}, nil
}

// DownsampleQuery aggregates one column per window [lower+k*interval,
// lower+(k+1)*interval) clipped to upper. Windows without rows are omitted;
// windows whose rows all fail the filter yield the NaN sentinel.
func (e *Engine) DownsampleQuery(ctx context.Context, req model.TimeRangeDownsampleRequest) (rows []model.Row, err error) {
	start := time.Now()
	defer func() { e.metrics.OnQuery("downsample", time.Since(start), len(rows), err) }()

	if e.closed.Load() {
		return nil, ErrClosed
	}
	if req.Interval <= 0 {
		return nil, invalidf("interval must be positive, have %d", req.Interval)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	schema, shards, err := e.table(req.Table)
	if err != nil {
		return nil, err
	}
	a, idx, err := newAggregation(schema, req.Column, req.Aggregator, req.Filter)
	if err != nil {
		return nil, err
	}
	in, err := e.fetch(shards, req.Vin, req.LowerBound, req.UpperBound, []int{idx})
	if err != nil {
		return nil, err
	}

	// in is sorted by timestamp, so each window is a contiguous run. Offsets
	// from the lower bound are unsigned: ts >= lower, but ts-lower may exceed
	// MaxInt64.
	interval := uint64(req.Interval)
	for i := 0; i < len(in); {
		k := (uint64(in[i].Timestamp) - uint64(req.LowerBound)) / interval
		windowStart := int64(uint64(req.LowerBound) + k*interval)
		j := i + 1
		for j < len(in) && uint64(in[j].Timestamp)-uint64(windowStart) < interval {
			j++
		}
		rows = append(rows, a.row(req.Vin, windowStart, a.apply(in[i:j])))
		i = j
	}
	return rows, nil
}
