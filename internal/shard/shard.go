package shard

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/vinstore/internal/blockmeta"
	"github.com/hupe1980/vinstore/internal/cache"
	"github.com/hupe1980/vinstore/internal/codec"
	"github.com/hupe1980/vinstore/internal/column"
	"github.com/hupe1980/vinstore/internal/datafile"
	vfs "github.com/hupe1980/vinstore/internal/fs"
	"github.com/hupe1980/vinstore/internal/memtable"
	"github.com/hupe1980/vinstore/internal/metafile"
	"github.com/hupe1980/vinstore/internal/resource"
	"github.com/hupe1980/vinstore/model"
)

// Observer receives flush events.
type Observer interface {
	OnFlush(duration time.Duration, rows int, bytes int64, err error)
}

// Config configures a Shard.
type Config struct {
	ID           int
	Dir          string
	FS           vfs.FileSystem
	Schema       model.Schema
	MemTableRows int
	Slots        int
	ShardBits    uint
	CacheBytes   int64
	BufferSize   int
	Compression  codec.Compression
	Resource     *resource.Controller
	Logger       *slog.Logger
	Observer     Observer
}

// Stats is a point-in-time view of a shard.
type Stats struct {
	Blocks       int
	MemTableRows int
	CacheEntries int
	CacheBytes   int64
	CacheHits    int64
	CacheMisses  int64
	DataBytes    uint64
}

// Shard is safe for concurrent use.
type Shard struct {
	mu sync.RWMutex

	cfg    Config
	ncols  int // schema columns
	mem    *memtable.MemTable
	index  *blockmeta.Index
	cache  *cache.LRU[*column.Array]
	data   *datafile.File
	latest []latestRow
	kinds  []column.Kind
}

func (c Config) path(ext string) string {
	return filepath.Join(c.Dir, fmt.Sprintf("shard-%03d.%s", c.ID, ext))
}

// Open loads the shard's block index and latest-row cache and opens its data
// file. Missing files mean an empty shard.
func Open(cfg Config) (*Shard, error) {
	if cfg.FS == nil {
		cfg.FS = vfs.Default
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	ncols := cfg.Schema.Len()
	total := ncols + memtable.SyntheticColumns

	index, err := blockmeta.Load(cfg.FS, cfg.path("meta"), cfg.Slots, total)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		index = blockmeta.NewIndex(cfg.Slots, total)
	case err != nil:
		return nil, fmt.Errorf("shard %d: load block index: %w", cfg.ID, err)
	}

	latest, err := loadLatest(cfg.FS, cfg.path("latest"), cfg.Schema, cfg.Slots)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		latest = make([]latestRow, cfg.Slots)
	case err != nil:
		return nil, fmt.Errorf("shard %d: load latest rows: %w", cfg.ID, err)
	}

	data, err := datafile.Open(cfg.FS, cfg.path("data"), datafile.Options{
		BufferSize: cfg.BufferSize,
		Resource:   cfg.Resource,
	})
	if err != nil {
		return nil, fmt.Errorf("shard %d: open data file: %w", cfg.ID, err)
	}
	if need := index.DataSize(); need > data.Size() {
		data.Close()
		return nil, fmt.Errorf("shard %d: %w: index references %d bytes, data file has %d",
			cfg.ID, metafile.ErrCorrupt, need, data.Size())
	}

	kinds := make([]column.Kind, total)
	for i, c := range cfg.Schema.Columns {
		kinds[i] = column.KindOf(c.Type)
	}
	kinds[ncols+memtable.VidColumn] = column.KindInt32
	kinds[ncols+memtable.TsColumn] = column.KindInt64
	kinds[ncols+memtable.OrigColumn] = column.KindInt32

	s := &Shard{
		cfg:   cfg,
		ncols: ncols,
		mem: memtable.New(memtable.Config{
			Schema:    cfg.Schema,
			Capacity:  cfg.MemTableRows,
			Slots:     cfg.Slots,
			ShardBits: cfg.ShardBits,
		}),
		index:  index,
		cache:  cache.NewLRU[*column.Array](cfg.CacheBytes, cfg.Resource),
		data:   data,
		latest: latest,
		kinds:  kinds,
	}
	cfg.Logger.Debug("shard opened", "shard", cfg.ID, "blocks", index.Len(), "data_bytes", data.Size())
	return s, nil
}

// ID returns the shard number.
func (s *Shard) ID() int { return s.cfg.ID }

// Write appends row for vid. A full memtable is flushed before the row is
// retried; a memtable that becomes full is flushed before returning.
func (s *Shard) Write(ctx context.Context, vid uint16, row model.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	full, err := s.mem.Add(row, vid)
	if errors.Is(err, memtable.ErrFull) {
		if err := s.flushLocked(ctx, false); err != nil {
			return err
		}
		full, err = s.mem.Add(row, vid)
	}
	if err != nil {
		return err
	}
	if full {
		return s.flushLocked(ctx, false)
	}
	return nil
}

// Flush writes the memtable as a block. With sync the data file tail is padded,
// written and synced as well.
func (s *Shard) Flush(ctx context.Context, sync bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx, sync)
}

func (s *Shard) flushLocked(ctx context.Context, sync bool) error {
	start := time.Now()
	rows := s.mem.Len()
	before := s.data.Size()

	s.refreshLatest()
	_, flushed, err := s.mem.Flush(ctx, s.index, s.data, s.cfg.Compression)
	if err == nil && sync {
		err = s.data.Sync(ctx)
	}
	if err != nil {
		err = fmt.Errorf("shard %d: flush: %w", s.cfg.ID, err)
	}

	if flushed || err != nil {
		written := int64(s.data.Size() - before)
		if s.cfg.Observer != nil {
			s.cfg.Observer.OnFlush(time.Since(start), rows, written, err)
		}
		if err != nil {
			s.cfg.Logger.Error("flush failed", "shard", s.cfg.ID, "rows", rows, "error", err)
		} else {
			s.cfg.Logger.Debug("flushed block", "shard", s.cfg.ID, "rows", rows, "bytes", written,
				"blocks", s.index.Len(), "duration", time.Since(start))
		}
	}
	return err
}

// refreshLatest copies every slot's newest memtable row into the latest-row
// cache when it is at least as new as the cached one.
func (s *Shard) refreshLatest() {
	s.mem.Touched(func(svid int) {
		idx, ts, ok := s.mem.Latest(svid)
		if !ok {
			return
		}
		cur := &s.latest[svid]
		if cur.values != nil && ts < cur.ts {
			return
		}
		if cur.values == nil {
			cur.values = make([]model.ColumnValue, s.ncols)
		}
		for c := 0; c < s.ncols; c++ {
			s.mem.Column(c).Get(idx, &cur.values[c])
		}
		cur.ts = ts
	})
}

// Latest returns the newest row of vid restricted to the columns in proj
// (schema indices). It never reads blocks.
func (s *Shard) Latest(vid uint16, proj []int) (model.Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svid := s.mem.Svid(vid)
	cached := s.latest[svid]
	if idx, ts, ok := s.mem.Latest(svid); ok && (cached.values == nil || ts >= cached.ts) {
		return s.memRow(idx, proj), true
	}
	if cached.values == nil {
		return model.Row{}, false
	}
	row := model.Row{Timestamp: cached.ts, Columns: make(map[string]model.ColumnValue, len(proj))}
	for _, c := range proj {
		row.Columns[s.cfg.Schema.Columns[c].Name] = cached.values[c].Clone()
	}
	return row, true
}

func (s *Shard) memRow(idx int, proj []int) model.Row {
	row := model.Row{Timestamp: s.mem.Timestamp(idx), Columns: make(map[string]model.ColumnValue, len(proj))}
	for _, c := range proj {
		row.Columns[s.cfg.Schema.Columns[c].Name] = s.mem.Column(c).Value(idx)
	}
	return row
}

// RowsInRange returns every row of vid with lower <= ts < upper, from the
// memtable and from all overlapping blocks. Rows are not ordered.
func (s *Shard) RowsInRange(vid uint16, lower, upper int64, proj []int) ([]model.Row, error) {
	if lower >= upper {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Row
	for _, idx := range s.mem.RowsInRange(vid, lower, upper) {
		out = append(out, s.memRow(idx, proj))
	}

	svid := s.mem.Svid(vid)
	cols := make([]*column.Array, s.ncols)
	for _, h := range s.index.BlocksByTimeRange(svid, lower, upper) {
		vids, err := s.blockColumn(h, s.ncols+memtable.VidColumn)
		if err != nil {
			return nil, err
		}
		ts, err := s.blockColumn(h, s.ncols+memtable.TsColumn)
		if err != nil {
			return nil, err
		}
		from, to := searchRange(vids.Int32s(), ts.Int64s(), int32(vid), lower, upper)
		if from == to {
			continue
		}
		for _, c := range proj {
			if cols[c], err = s.blockColumn(h, c); err != nil {
				return nil, err
			}
		}
		tss := ts.Int64s()
		for i := from; i < to; i++ {
			row := model.Row{Timestamp: tss[i], Columns: make(map[string]model.ColumnValue, len(proj))}
			for _, c := range proj {
				row.Columns[s.cfg.Schema.Columns[c].Name] = cols[c].Value(i)
			}
			out = append(out, row)
		}
	}
	return out, nil
}

// searchRange locates the rows of vid with lower <= ts < upper in a block
// sorted by (vid, ts): first the vid run, then the timestamp sub-range.
func searchRange(vids []int32, ts []int64, vid int32, lower, upper int64) (int, int) {
	runStart := sort.Search(len(vids), func(i int) bool { return vids[i] >= vid })
	runEnd := runStart + sort.Search(len(vids)-runStart, func(i int) bool { return vids[runStart+i] > vid })
	run := ts[runStart:runEnd]
	from := sort.Search(len(run), func(i int) bool { return run[i] >= lower })
	to := sort.Search(len(run), func(i int) bool { return run[i] >= upper })
	return runStart + from, runStart + to
}

// blockColumn returns a decompressed column of a block through the read cache.
func (s *Shard) blockColumn(h blockmeta.Handle, col int) (*column.Array, error) {
	key := cache.Key{Block: uint32(h), Column: col}
	if a, ok := s.cache.Get(key); ok {
		return a, nil
	}
	b := s.index.Get(h)
	a, err := column.Read(s.data, s.kinds[col], int(b.RowCount), b.Columns[col])
	if err != nil {
		return nil, fmt.Errorf("shard %d: read block %d column %d: %w", s.cfg.ID, h, col, err)
	}
	s.cache.Set(key, a)
	return a, nil
}

// Persist flushes the memtable, forces the data file tail to disk and saves the
// block index and the latest-row cache. Every failure is reported.
func (s *Shard) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if err := s.flushLocked(ctx, true); err != nil {
		errs = append(errs, err)
	}
	if err := s.index.Save(s.cfg.FS, s.cfg.path("meta")); err != nil {
		errs = append(errs, fmt.Errorf("shard %d: save block index: %w", s.cfg.ID, err))
	}
	if err := saveLatest(s.cfg.FS, s.cfg.path("latest"), s.latest); err != nil {
		errs = append(errs, fmt.Errorf("shard %d: save latest rows: %w", s.cfg.ID, err))
	}
	return errors.Join(errs...)
}

// Close drops the read cache and releases the data file. It does not persist.
func (s *Shard) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
	return s.data.Close()
}

// Stats returns a snapshot of the shard's counters.
func (s *Shard) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits, misses := s.cache.Stats()
	return Stats{
		Blocks:       s.index.Len(),
		MemTableRows: s.mem.Len(),
		CacheEntries: s.cache.Len(),
		CacheBytes:   s.cache.Size(),
		CacheHits:    hits,
		CacheMisses:  misses,
		DataBytes:    s.data.Size(),
	}
}
