package engine

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/vinstore/internal/fs"
	"github.com/hupe1980/vinstore/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const table = "vehicles"

var testSchema = model.NewSchema(
	model.Column{Name: "speed", Type: model.ColumnTypeInteger},
	model.Column{Name: "temp", Type: model.ColumnTypeDouble},
	model.Column{Name: "state", Type: model.ColumnTypeString},
)

func vin(i int) model.Vin {
	return model.MustParseVin(fmt.Sprintf("VIN%014d", i))
}

func row(v model.Vin, ts int64) model.Row {
	return model.Row{
		Vin:       v,
		Timestamp: ts,
		Columns: map[string]model.ColumnValue{
			"speed": model.IntValue(int32(ts)),
			"temp":  model.DoubleValue(float64(ts) / 2),
			"state": model.StringValue(fmt.Sprintf("s%d", ts%3)),
		},
	}
}

func openEngine(t *testing.T, dir string, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithMemTableRows(16)}, opts...)
	e, err := Open(dir, opts...)
	require.NoError(t, err)
	return e
}

func openTable(t *testing.T, dir string, opts ...Option) *Engine {
	t.Helper()
	e := openEngine(t, dir, opts...)
	require.NoError(t, e.CreateTable(context.Background(), table, testSchema))
	return e
}

func writeSeries(t *testing.T, e *Engine, v model.Vin, from, to int64) {
	t.Helper()
	req := model.WriteRequest{Table: table}
	for ts := from; ts < to; ts++ {
		req.Rows = append(req.Rows, row(v, ts))
	}
	require.NoError(t, e.Write(context.Background(), req))
}

func TestCreateTable(t *testing.T) {
	ctx := context.Background()
	e := openEngine(t, t.TempDir())
	defer e.Shutdown(ctx)

	_, ok := e.TableID()
	assert.False(t, ok)

	require.NoError(t, e.CreateTable(ctx, table, testSchema))
	id, ok := e.TableID()
	require.True(t, ok)
	assert.NotEmpty(t, id)

	// Same definition is a no-op.
	require.NoError(t, e.CreateTable(ctx, table, testSchema))
	id2, _ := e.TableID()
	assert.Equal(t, id, id2)

	err := e.CreateTable(ctx, "other", testSchema)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	err = e.CreateTable(ctx, table, model.NewSchema(model.Column{Name: "speed", Type: model.ColumnTypeInteger}))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateTableInvalidSchema(t *testing.T) {
	e := openEngine(t, t.TempDir())
	defer e.Shutdown(context.Background())

	err := e.CreateTable(context.Background(), table, model.NewSchema(
		model.Column{Name: "a", Type: model.ColumnTypeInteger},
		model.Column{Name: "a", Type: model.ColumnTypeDouble},
	))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestWriteValidation(t *testing.T) {
	ctx := context.Background()
	e := openTable(t, t.TempDir())
	defer e.Shutdown(ctx)

	t.Run("unknown table", func(t *testing.T) {
		err := e.Write(ctx, model.WriteRequest{Table: "nope", Rows: []model.Row{row(vin(1), 1)}})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("incomplete row", func(t *testing.T) {
		r := row(vin(1), 1)
		delete(r.Columns, "temp")
		err := e.Write(ctx, model.WriteRequest{Table: table, Rows: []model.Row{r}})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("type mismatch", func(t *testing.T) {
		r := row(vin(1), 1)
		r.Columns["speed"] = model.DoubleValue(1)
		err := e.Write(ctx, model.WriteRequest{Table: table, Rows: []model.Row{r}})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("nothing applied on invalid batch", func(t *testing.T) {
		bad := row(vin(2), 2)
		bad.Columns["extra"] = model.IntValue(1)
		err := e.Write(ctx, model.WriteRequest{Table: table, Rows: []model.Row{row(vin(2), 1), bad}})
		require.ErrorIs(t, err, ErrInvalidArgument)

		rows, err := e.LatestQuery(ctx, model.LatestQueryRequest{Table: table, Vins: []model.Vin{vin(2)}})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestLatestQuery(t *testing.T) {
	ctx := context.Background()
	e := openTable(t, t.TempDir())
	defer e.Shutdown(ctx)

	writeSeries(t, e, vin(1), 0, 40)
	writeSeries(t, e, vin(2), 0, 5)
	// Older row after the newest one does not replace it.
	writeSeries(t, e, vin(2), 1, 2)

	rows, err := e.LatestQuery(ctx, model.LatestQueryRequest{
		Table: table,
		Vins:  []model.Vin{vin(2), vin(99), vin(1)},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Equal(row(vin(2), 4)))
	assert.True(t, rows[1].Equal(row(vin(1), 39)))

	rows, err = e.LatestQuery(ctx, model.LatestQueryRequest{
		Table:   table,
		Vins:    []model.Vin{vin(1)},
		Columns: []string{"state"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Columns, 1)
	assert.Equal(t, "s0", mustStr(t, rows[0].Columns["state"]))

	_, err = e.LatestQuery(ctx, model.LatestQueryRequest{Table: table, Vins: []model.Vin{vin(1)}, Columns: []string{"nope"}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestLatestLastWriteWinsOnTie(t *testing.T) {
	ctx := context.Background()
	e := openTable(t, t.TempDir())
	defer e.Shutdown(ctx)

	first := row(vin(1), 10)
	second := row(vin(1), 10)
	second.Columns["state"] = model.StringValue("later")
	require.NoError(t, e.Write(ctx, model.WriteRequest{Table: table, Rows: []model.Row{first, second}}))

	rows, err := e.LatestQuery(ctx, model.LatestQueryRequest{Table: table, Vins: []model.Vin{vin(1)}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "later", mustStr(t, rows[0].Columns["state"]))
}

func TestTimeRangeQuery(t *testing.T) {
	ctx := context.Background()
	e := openTable(t, t.TempDir())
	defer e.Shutdown(ctx)

	// 100 rows with a 16-row memtable: several blocks plus a memtable tail.
	// vin(1) and vin(17) get vids 0 and 16 and share shard 0.
	writeSeries(t, e, vin(1), 0, 1)
	for i := 2; i <= 16; i++ {
		writeSeries(t, e, vin(i), 0, 1)
	}
	writeSeries(t, e, vin(17), 0, 1)
	for ts := int64(1); ts < 100; ts++ {
		require.NoError(t, e.Write(ctx, model.WriteRequest{Table: table, Rows: []model.Row{
			row(vin(1), ts), row(vin(17), ts*2),
		}}))
	}
	require.Positive(t, e.Stats().Blocks)
	vid, _ := e.vins.Lookup(vin(17))
	require.Equal(t, uint16(16), vid)

	cases := []struct{ lower, upper int64 }{
		{0, 100}, {10, 20}, {15, 16}, {95, 200}, {-5, 3}, {50, 50}, {60, 40},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("[%d,%d)", tc.lower, tc.upper), func(t *testing.T) {
			rows, err := e.TimeRangeQuery(ctx, model.TimeRangeQueryRequest{
				Table: table, Vin: vin(1), LowerBound: tc.lower, UpperBound: tc.upper,
			})
			require.NoError(t, err)

			var want []int64
			for ts := max(tc.lower, 0); ts < min(tc.upper, 100); ts++ {
				want = append(want, ts)
			}
			got := make([]int64, 0, len(rows))
			for _, r := range rows {
				assert.Equal(t, vin(1), r.Vin)
				assert.True(t, r.Equal(row(vin(1), r.Timestamp)))
				got = append(got, r.Timestamp)
			}
			assert.Equal(t, len(want), len(got))
			if len(want) > 0 {
				assert.Equal(t, want, got)
			}
		})
	}
}

func TestTimeRangeQueryUnknownVin(t *testing.T) {
	ctx := context.Background()
	e := openTable(t, t.TempDir())
	defer e.Shutdown(ctx)

	_, err := e.TimeRangeQuery(ctx, model.TimeRangeQueryRequest{Table: table, Vin: vin(5), UpperBound: 10})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAggregateQuery(t *testing.T) {
	ctx := context.Background()
	e := openTable(t, t.TempDir())
	defer e.Shutdown(ctx)
	writeSeries(t, e, vin(1), 0, 10)

	agg := func(a model.Aggregator, column string, lower, upper int64, f *model.CompareExpression) []model.Row {
		t.Helper()
		rows, err := e.AggregateQuery(ctx, model.TimeRangeAggregationRequest{
			Table: table, Vin: vin(1), LowerBound: lower, UpperBound: upper,
			Column: column, Aggregator: a, Filter: f,
		})
		require.NoError(t, err)
		return rows
	}

	t.Run("max", func(t *testing.T) {
		rows := agg(model.AggregatorMax, "speed", 2, 8, nil)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(2), rows[0].Timestamp)
		assert.Equal(t, vin(1), rows[0].Vin)
		assert.True(t, rows[0].Columns["speed"].Equal(model.IntValue(7)))
	})

	t.Run("avg", func(t *testing.T) {
		rows := agg(model.AggregatorAvg, "speed", 0, 10, nil)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].Columns["speed"].Equal(model.DoubleValue(4.5)))
	})

	t.Run("max double", func(t *testing.T) {
		rows := agg(model.AggregatorMax, "temp", 0, 10, nil)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].Columns["temp"].Equal(model.DoubleValue(4.5)))
	})

	t.Run("filter greater", func(t *testing.T) {
		f := &model.CompareExpression{Op: model.CompareGreater, Value: model.IntValue(6)}
		rows := agg(model.AggregatorAvg, "speed", 0, 10, f)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].Columns["speed"].Equal(model.DoubleValue(8)))
	})

	t.Run("filter rejects all", func(t *testing.T) {
		f := &model.CompareExpression{Op: model.CompareEqual, Value: model.IntValue(42)}
		rows := agg(model.AggregatorMax, "speed", 0, 10, f)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].Columns["speed"].IsNaN())

		rows = agg(model.AggregatorMax, "temp", 0, 10, f)
		require.Len(t, rows, 1)
		v, err := rows[0].Columns["temp"].Double()
		require.NoError(t, err)
		assert.True(t, math.IsNaN(v))
	})

	t.Run("empty range", func(t *testing.T) {
		assert.Empty(t, agg(model.AggregatorMax, "speed", 100, 200, nil))
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := e.AggregateQuery(ctx, model.TimeRangeAggregationRequest{
			Table: table, Vin: vin(1), UpperBound: 10, Column: "state", Aggregator: model.AggregatorMax,
		})
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = e.AggregateQuery(ctx, model.TimeRangeAggregationRequest{
			Table: table, Vin: vin(1), UpperBound: 10, Column: "speed", Aggregator: model.AggregatorMax,
			Filter: &model.CompareExpression{Op: model.CompareEqual, Value: model.StringValue("x")},
		})
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = e.AggregateQuery(ctx, model.TimeRangeAggregationRequest{
			Table: table, Vin: vin(2), UpperBound: 10, Column: "speed", Aggregator: model.AggregatorMax,
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDownsampleQuery(t *testing.T) {
	ctx := context.Background()
	e := openTable(t, t.TempDir())
	defer e.Shutdown(ctx)
	writeSeries(t, e, vin(1), 0, 10)
	writeSeries(t, e, vin(1), 20, 23)

	down := func(a model.Aggregator, lower, upper, interval int64, f *model.CompareExpression) []model.Row {
		t.Helper()
		rows, err := e.DownsampleQuery(ctx, model.TimeRangeDownsampleRequest{
			Table: table, Vin: vin(1), LowerBound: lower, UpperBound: upper, Interval: interval,
			Column: "speed", Aggregator: a, Filter: f,
		})
		require.NoError(t, err)
		return rows
	}

	t.Run("avg", func(t *testing.T) {
		rows := down(model.AggregatorAvg, 0, 10, 5, nil)
		require.Len(t, rows, 2)
		assert.Equal(t, int64(0), rows[0].Timestamp)
		assert.True(t, rows[0].Columns["speed"].Equal(model.DoubleValue(2)))
		assert.Equal(t, int64(5), rows[1].Timestamp)
		assert.True(t, rows[1].Columns["speed"].Equal(model.DoubleValue(7)))
	})

	t.Run("empty windows omitted", func(t *testing.T) {
		rows := down(model.AggregatorMax, 0, 30, 5, nil)
		require.Len(t, rows, 3)
		assert.Equal(t, []int64{0, 5, 20}, []int64{rows[0].Timestamp, rows[1].Timestamp, rows[2].Timestamp})
		assert.True(t, rows[2].Columns["speed"].Equal(model.IntValue(22)))
	})

	t.Run("offset lower bound", func(t *testing.T) {
		rows := down(model.AggregatorMax, 3, 9, 4, nil)
		require.Len(t, rows, 2)
		assert.Equal(t, int64(3), rows[0].Timestamp)
		assert.True(t, rows[0].Columns["speed"].Equal(model.IntValue(6)))
		assert.Equal(t, int64(7), rows[1].Timestamp)
		assert.True(t, rows[1].Columns["speed"].Equal(model.IntValue(8)))
	})

	t.Run("lower bound at min int64", func(t *testing.T) {
		// MinInt64 is 1 mod 3, so windows start at -2, 1, 4 and 7.
		rows := down(model.AggregatorMax, math.MinInt64, 10, 3, nil)
		require.Len(t, rows, 4)
		for i, want := range []struct{ start, max int64 }{{-2, 0}, {1, 3}, {4, 6}, {7, 9}} {
			assert.Equal(t, want.start, rows[i].Timestamp)
			assert.True(t, rows[i].Columns["speed"].Equal(model.IntValue(int32(want.max))), "window %d", i)
		}

		rows = down(model.AggregatorMax, math.MinInt64, math.MaxInt64, 3, nil)
		require.Len(t, rows, 6)
		assert.Equal(t, int64(19), rows[4].Timestamp)
		assert.True(t, rows[4].Columns["speed"].Equal(model.IntValue(21)))
		assert.Equal(t, int64(22), rows[5].Timestamp)
		for _, r := range rows {
			assert.LessOrEqual(t, r.Timestamp, int64(22))
		}
	})

	t.Run("filtered window is NaN", func(t *testing.T) {
		f := &model.CompareExpression{Op: model.CompareGreater, Value: model.IntValue(6)}
		rows := down(model.AggregatorMax, 0, 10, 5, f)
		require.Len(t, rows, 2)
		assert.True(t, rows[0].Columns["speed"].IsNaN())
		assert.True(t, rows[1].Columns["speed"].Equal(model.IntValue(9)))
	})

	t.Run("invalid interval", func(t *testing.T) {
		_, err := e.DownsampleQuery(ctx, model.TimeRangeDownsampleRequest{
			Table: table, Vin: vin(1), UpperBound: 10, Column: "speed", Aggregator: model.AggregatorAvg,
		})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	e := openTable(t, dir)
	id, _ := e.TableID()
	vins := []model.Vin{vin(1), vin(2), vin(3), vin(40)}
	for i, v := range vins {
		writeSeries(t, e, v, 0, int64(10+i*13))
	}

	query := func(e *Engine) ([]model.Row, [][]model.Row) {
		latest, err := e.LatestQuery(ctx, model.LatestQueryRequest{Table: table, Vins: vins})
		require.NoError(t, err)
		var ranges [][]model.Row
		for _, v := range vins {
			rows, err := e.TimeRangeQuery(ctx, model.TimeRangeQueryRequest{Table: table, Vin: v, LowerBound: 3, UpperBound: 30})
			require.NoError(t, err)
			ranges = append(ranges, rows)
		}
		return latest, ranges
	}
	wantLatest, wantRanges := query(e)
	require.NoError(t, e.Shutdown(ctx))

	e = openEngine(t, dir)
	defer e.Shutdown(ctx)

	id2, ok := e.TableID()
	require.True(t, ok)
	assert.Equal(t, id, id2)

	gotLatest, gotRanges := query(e)
	assertRowsEqual(t, wantLatest, gotLatest)
	require.Len(t, gotRanges, len(wantRanges))
	for i := range wantRanges {
		assertRowsEqual(t, wantRanges[i], gotRanges[i])
	}
	assert.Zero(t, e.Stats().MemTableRows)
}

func TestVidStableAcrossRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	e := openTable(t, dir)
	writeSeries(t, e, vin(7), 0, 1)
	writeSeries(t, e, vin(8), 0, 1)
	vid, ok := e.vins.Lookup(vin(7))
	require.True(t, ok)
	writeSeries(t, e, vin(7), 1, 2)
	again, _ := e.vins.Lookup(vin(7))
	assert.Equal(t, vid, again)
	require.NoError(t, e.Shutdown(ctx))

	e = openEngine(t, dir)
	defer e.Shutdown(ctx)
	reloaded, ok := e.vins.Lookup(vin(7))
	require.True(t, ok)
	assert.Equal(t, vid, reloaded)

	// A new vin after restart never reuses an id.
	writeSeries(t, e, vin(9), 0, 1)
	fresh, _ := e.vins.Lookup(vin(9))
	assert.Equal(t, uint16(2), fresh)
}

func TestShardRoutingDeterministic(t *testing.T) {
	ctx := context.Background()
	e := openTable(t, t.TempDir())
	defer e.Shutdown(ctx)

	for i := 0; i < ShardCount*2; i++ {
		writeSeries(t, e, vin(i), 0, 1)
	}
	for i := 0; i < ShardCount*2; i++ {
		vid, ok := e.vins.Lookup(vin(i))
		require.True(t, ok)
		assert.Equal(t, uint16(i), vid)
	}
	for id := 0; id < ShardCount; id++ {
		assert.Equal(t, 2, e.shards[id].Stats().MemTableRows, "shard %d", id)
	}

	// Later writes of a known vin land in the same shard.
	writeSeries(t, e, vin(ShardCount+3), 1, 4)
	assert.Equal(t, 5, e.shards[3].Stats().MemTableRows)
}

func TestFlushEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	e := openTable(t, t.TempDir())
	defer e.Shutdown(ctx)

	require.NoError(t, e.Flush(ctx, false))
	require.NoError(t, e.Flush(ctx, false))
	assert.Zero(t, e.Stats().Blocks)

	writeSeries(t, e, vin(1), 0, 3)
	require.NoError(t, e.Flush(ctx, true))
	require.NoError(t, e.Flush(ctx, true))
	assert.Equal(t, 1, e.Stats().Blocks)
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	e := openTable(t, t.TempDir())
	require.NoError(t, e.Shutdown(ctx))

	assert.ErrorIs(t, e.Shutdown(ctx), ErrClosed)
	assert.ErrorIs(t, e.Write(ctx, model.WriteRequest{Table: table}), ErrClosed)
	_, err := e.LatestQuery(ctx, model.LatestQueryRequest{Table: table})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.TimeRangeQuery(ctx, model.TimeRangeQueryRequest{Table: table})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, e.CreateTable(ctx, table, testSchema), ErrClosed)
	assert.ErrorIs(t, e.Flush(ctx, false), ErrClosed)
}

func TestCallsWaitingOnShutdownSeeClosed(t *testing.T) {
	ctx := context.Background()
	e := openTable(t, t.TempDir())
	writeSeries(t, e, vin(1), 0, 3)

	// Callers queue behind the table lock, then Shutdown flips closed while
	// they wait. Whoever runs first afterwards, the callers must not touch
	// released shards.
	e.mu.Lock()
	errs := make(chan error, 4)
	go func() {
		errs <- e.Write(ctx, model.WriteRequest{Table: table, Rows: []model.Row{row(vin(1), 9)}})
	}()
	go func() {
		_, err := e.LatestQuery(ctx, model.LatestQueryRequest{Table: table, Vins: []model.Vin{vin(1)}})
		errs <- err
	}()
	go func() {
		_, err := e.TimeRangeQuery(ctx, model.TimeRangeQueryRequest{Table: table, Vin: vin(1), UpperBound: 10})
		errs <- err
	}()
	go func() {
		_, err := e.DownsampleQuery(ctx, model.TimeRangeDownsampleRequest{
			Table: table, Vin: vin(1), UpperBound: 10, Interval: 5, Column: "speed", Aggregator: model.AggregatorMax,
		})
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)

	shutdown := make(chan error, 1)
	go func() { shutdown <- e.Shutdown(ctx) }()
	require.Eventually(t, e.closed.Load, time.Second, time.Millisecond)
	e.mu.Unlock()

	for i := 0; i < 4; i++ {
		assert.ErrorIs(t, <-errs, ErrClosed)
	}
	require.NoError(t, <-shutdown)
}

func TestDirectoryLocked(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := openEngine(t, dir)

	_, err := Open(dir)
	assert.ErrorIs(t, err, ErrIO)

	require.NoError(t, e.Shutdown(ctx))
	e2, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, e2.Shutdown(ctx))
}

func TestShutdownSurfacesIOErrors(t *testing.T) {
	ctx := context.Background()
	fsys := fs.NewFaultyFS(nil)
	e := openTable(t, t.TempDir(), WithFileSystem(fsys))
	writeSeries(t, e, vin(5), 0, 3)

	fsys.AddRule("shard-005.meta", fs.Fault{FailAfterBytes: -1, FailOnRename: true})
	err := e.Shutdown(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, fs.ErrInjected)
}

func TestOpenCorruptFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	e := openTable(t, dir)
	writeSeries(t, e, vin(1), 0, 3)
	require.NoError(t, e.Shutdown(ctx))

	path := filepath.Join(dir, "VINS")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Open(dir)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func mustStr(t *testing.T, v model.ColumnValue) string {
	t.Helper()
	s, err := v.Str()
	require.NoError(t, err)
	return s
}

func assertRowsEqual(t *testing.T, want, got []model.Row) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "row %d: want %+v, got %+v", i, want[i], got[i])
	}
}

func TestConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	e := openTable(t, t.TempDir())
	defer e.Shutdown(ctx)

	const writers, vins, perVin = 8, 40, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < vins; i++ {
				for ts := int64(w); ts < perVin*writers; ts += writers {
					assert.NoError(t, e.Write(ctx, model.WriteRequest{Table: table, Rows: []model.Row{row(vin(i), ts)}}))
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, vins, e.Stats().Vins)
	for i := 0; i < vins; i++ {
		rows, err := e.TimeRangeQuery(ctx, model.TimeRangeQueryRequest{
			Table: table, Vin: vin(i), LowerBound: 0, UpperBound: perVin * writers,
		})
		require.NoError(t, err)
		require.Len(t, rows, perVin*writers)
		for j, r := range rows {
			assert.Equal(t, int64(j), r.Timestamp)
		}
	}
}

func TestOutOfOrderAndDuplicateTimestamps(t *testing.T) {
	ctx := context.Background()
	e := openTable(t, t.TempDir())
	defer e.Shutdown(ctx)

	const n = 70
	count := make(map[int64]int)
	for i := 0; i < n; i++ {
		ts := int64(i*37) % 50
		count[ts]++
		require.NoError(t, e.Write(ctx, model.WriteRequest{Table: table, Rows: []model.Row{row(vin(1), ts)}}))
	}
	require.GreaterOrEqual(t, e.Stats().Blocks, 4)

	for _, tc := range []struct{ lower, upper int64 }{{0, 50}, {10, 37}, {49, 50}, {0, 1}, {25, 26}} {
		rows, err := e.TimeRangeQuery(ctx, model.TimeRangeQueryRequest{
			Table: table, Vin: vin(1), LowerBound: tc.lower, UpperBound: tc.upper,
		})
		require.NoError(t, err)

		want := 0
		for ts := tc.lower; ts < tc.upper; ts++ {
			want += count[ts]
		}
		require.Len(t, rows, want, "[%d, %d)", tc.lower, tc.upper)

		got := make(map[int64]int)
		for i, r := range rows {
			got[r.Timestamp]++
			if i > 0 {
				assert.LessOrEqual(t, rows[i-1].Timestamp, r.Timestamp)
			}
			assert.True(t, r.Equal(row(vin(1), r.Timestamp)))
		}
		for ts := tc.lower; ts < tc.upper; ts++ {
			assert.Equal(t, count[ts], got[ts], "ts %d", ts)
		}
	}
}

func TestConcurrentReadersAndWritersOnOneShard(t *testing.T) {
	ctx := context.Background()
	e := openTable(t, t.TempDir())
	defer e.Shutdown(ctx)

	// vin(1) and vin(17) both land on shard 0.
	const total = 300
	writeSeries(t, e, vin(1), 0, 1)
	for i := 2; i <= 16; i++ {
		writeSeries(t, e, vin(i), 0, 1)
	}
	writeSeries(t, e, vin(17), 0, 1)

	var wg sync.WaitGroup
	for _, v := range []model.Vin{vin(1), vin(17)} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ts := int64(1); ts < total; ts++ {
				assert.NoError(t, e.Write(ctx, model.WriteRequest{Table: table, Rows: []model.Row{row(v, ts)}}))
			}
		}()
	}

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lastLatest, lastLen := int64(-1), 0
			for i := 0; i < 100; i++ {
				rows, err := e.TimeRangeQuery(ctx, model.TimeRangeQueryRequest{
					Table: table, Vin: vin(1), LowerBound: 0, UpperBound: total,
				})
				if !assert.NoError(t, err) {
					return
				}
				// Writes of one vin are applied in order, so every read sees a prefix.
				assert.GreaterOrEqual(t, len(rows), lastLen)
				lastLen = len(rows)
				for j, row := range rows {
					assert.Equal(t, int64(j), row.Timestamp)
				}

				latest, err := e.LatestQuery(ctx, model.LatestQueryRequest{Table: table, Vins: []model.Vin{vin(17)}})
				if !assert.NoError(t, err) || !assert.Len(t, latest, 1) {
					return
				}
				assert.GreaterOrEqual(t, latest[0].Timestamp, lastLatest)
				lastLatest = latest[0].Timestamp
			}
		}()
	}
	wg.Wait()

	latest, err := e.LatestQuery(ctx, model.LatestQueryRequest{Table: table, Vins: []model.Vin{vin(1), vin(17)}})
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(total-1), latest[0].Timestamp)
	assert.Equal(t, int64(total-1), latest[1].Timestamp)
}
