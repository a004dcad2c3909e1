package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vinstore/internal/codec"
	"github.com/hupe1980/vinstore/internal/datafile"
	vfs "github.com/hupe1980/vinstore/internal/fs"
	"github.com/hupe1980/vinstore/internal/manifest"
	"github.com/hupe1980/vinstore/internal/resource"
	"github.com/hupe1980/vinstore/internal/shard"
	"github.com/hupe1980/vinstore/internal/vinreg"
	"github.com/hupe1980/vinstore/model"
)

const (
	// ShardBits is the number of low vid bits selecting the shard.
	ShardBits = 4
	// ShardCount is the number of shards.
	ShardCount = 1 << ShardBits
	// MaxVins is the total vin capacity of a data directory.
	MaxVins = 1 << 15
	// VinsPerShard is the per-shard entity capacity.
	VinsPerShard = (MaxVins + ShardCount - 1) / ShardCount

	// DefaultMemTableRows is the default per-shard memtable capacity.
	DefaultMemTableRows = 8192
	// DefaultReadCacheSize is the default per-shard read cache capacity.
	DefaultReadCacheSize = 32 << 20
)

const (
	vinsFile = "VINS"
	lockFile = "LOCK"
)

// Engine is the storage engine of one data directory. Safe for concurrent use.
type Engine struct {
	dir    string
	fs     vfs.FileSystem
	logger *slog.Logger

	metrics MetricsObserver
	rc      *resource.Controller

	memTableRows int
	cacheBytes   int64
	bufferSize   int
	compression  codec.Compression

	lock io.Closer
	vins *vinreg.Registry

	// mu guards the table definition and the shard slice. Data paths only take
	// the read lock; shards serialize their own state.
	mu       sync.RWMutex
	manifest *manifest.Manifest
	shards   []*shard.Shard

	closed atomic.Bool
}

// Open connects to the data directory dir, creating it on first use. Every
// persisted file that is missing means empty state; a file that fails its
// structural checks refuses the open with ErrCorrupt.
func Open(dir string, opts ...Option) (*Engine, error) {
	e := &Engine{
		dir:          dir,
		fs:           vfs.Default,
		metrics:      NoopMetricsObserver{},
		memTableRows: DefaultMemTableRows,
		cacheBytes:   DefaultReadCacheSize,
		bufferSize:   datafile.DefaultBufferSize,
		compression:  codec.CompressionZSTD,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.rc == nil {
		e.rc = resource.NewController(resource.Config{MaxBackgroundWorkers: int64(runtime.GOMAXPROCS(0))})
	}
	if e.bufferSize%datafile.Alignment != 0 {
		return nil, invalidf("write buffer size %d is not a multiple of %d", e.bufferSize, datafile.Alignment)
	}

	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, classify(fmt.Errorf("create data directory: %w", err))
	}
	lock, err := e.fs.Lock(filepath.Join(dir, lockFile))
	if err != nil {
		return nil, classify(fmt.Errorf("lock data directory: %w", err))
	}
	e.lock = lock

	if err := e.load(); err != nil {
		e.closeShards()
		_ = e.lock.Close()
		e.logger.Error("open failed", "dir", dir, "error", err)
		return nil, classify(err)
	}

	e.logger.Info("engine opened", "dir", dir, "vins", e.vins.Len(), "table", e.tableName(),
		"memory_limit", e.rc.MemoryLimit(), "workers", e.rc.Workers())
	return e, nil
}

func (e *Engine) load() error {
	m, err := manifest.Load(e.fs, filepath.Join(e.dir, manifest.FileName))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("load table manifest: %w", err)
	default:
		e.manifest = m
	}

	vins, err := vinreg.Load(e.fs, filepath.Join(e.dir, vinsFile), MaxVins)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		vins = vinreg.New(MaxVins)
	case err != nil:
		return fmt.Errorf("load vin registry: %w", err)
	}
	e.vins = vins

	if e.manifest == nil {
		return nil
	}
	return e.openShards(e.manifest.Schema)
}

func (e *Engine) openShards(schema model.Schema) error {
	shards := make([]*shard.Shard, ShardCount)
	err := e.forEachShard(context.Background(), func(_ context.Context, id int) error {
		s, err := shard.Open(shard.Config{
			ID:           id,
			Dir:          e.dir,
			FS:           e.fs,
			Schema:       schema,
			MemTableRows: e.memTableRows,
			Slots:        VinsPerShard,
			ShardBits:    ShardBits,
			CacheBytes:   e.cacheBytes,
			BufferSize:   e.bufferSize,
			Compression:  e.compression,
			Resource:     e.rc,
			Logger:       e.logger,
			Observer:     e.metrics,
		})
		if err != nil {
			return err
		}
		shards[id] = s
		return nil
	})
	if err != nil {
		for _, s := range shards {
			if s != nil {
				_ = s.Close()
			}
		}
		return err
	}
	e.shards = shards
	return nil
}

// forEachShard runs fn once per shard id, bounded by the resource controller's
// background slots. All errors are collected.
func (e *Engine) forEachShard(ctx context.Context, fn func(ctx context.Context, id int) error) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for id := 0; id < ShardCount; id++ {
		g.Go(func() error {
			if err := e.rc.AcquireBackground(gctx); err != nil {
				return err
			}
			defer e.rc.ReleaseBackground()
			if err := fn(gctx, id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// CreateTable defines the single table of the directory. Creating the same
// table again with an identical schema is a no-op.
func (e *Engine) CreateTable(ctx context.Context, name string, schema model.Schema) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if name == "" {
		return invalidf("empty table name")
	}
	if err := schema.Validate(); err != nil {
		return invalidf("%v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return ErrClosed
	}

	if e.manifest != nil {
		if e.manifest.Name == name && slices.Equal(e.manifest.Schema.Columns, schema.Columns) {
			return nil
		}
		return invalidf("table %q already exists", e.manifest.Name)
	}

	m := manifest.New(name, schema)
	if err := m.Save(e.fs, filepath.Join(e.dir, manifest.FileName)); err != nil {
		return classify(fmt.Errorf("save table manifest: %w", err))
	}
	if err := e.openShards(m.Schema); err != nil {
		return classify(err)
	}
	e.manifest = m
	e.logger.Info("table created", "table", name, "id", m.ID, "columns", schema.Len())
	return nil
}

// TableID returns the identity of the table, or false before CreateTable.
func (e *Engine) TableID() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.manifest == nil {
		return "", false
	}
	return e.manifest.ID.String(), true
}

// Schema returns the table schema, or false before CreateTable.
func (e *Engine) Schema() (model.Schema, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.manifest == nil {
		return model.Schema{}, false
	}
	return model.NewSchema(e.manifest.Schema.Columns...), true
}

func (e *Engine) tableName() string {
	if e.manifest == nil {
		return ""
	}
	return e.manifest.Name
}

// table checks that name is the open table and returns its schema and shards.
// The caller must hold e.mu. Shutdown may have run between the caller's
// closed check and acquiring the lock, so closed is checked again here.
func (e *Engine) table(name string) (model.Schema, []*shard.Shard, error) {
	if e.closed.Load() {
		return model.Schema{}, nil, ErrClosed
	}
	if e.manifest == nil || e.manifest.Name != name {
		return model.Schema{}, nil, fmt.Errorf("%w: table %q", ErrNotFound, name)
	}
	return e.manifest.Schema, e.shards, nil
}

// Write stores every row of req. All rows are validated before any is applied.
func (e *Engine) Write(ctx context.Context, req model.WriteRequest) (err error) {
	start := time.Now()
	defer func() { e.metrics.OnWrite(time.Since(start), len(req.Rows), err) }()

	if e.closed.Load() {
		return ErrClosed
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	schema, shards, err := e.table(req.Table)
	if err != nil {
		return err
	}
	for i := range req.Rows {
		if err := validateRow(schema, req.Rows[i]); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}

	for _, row := range req.Rows {
		vid, err := e.vins.Resolve(row.Vin)
		if err != nil {
			return classify(fmt.Errorf("vin %s: %w", row.Vin, err))
		}
		if err := shards[vid&(ShardCount-1)].Write(ctx, vid, row); err != nil {
			e.logger.Error("write failed", "vin", row.Vin.String(), "error", err)
			return classify(err)
		}
	}
	return nil
}

func validateRow(schema model.Schema, row model.Row) error {
	if len(row.Columns) != schema.Len() {
		return invalidf("row has %d columns, schema has %d", len(row.Columns), schema.Len())
	}
	for _, c := range schema.Columns {
		v, ok := row.Columns[c.Name]
		if !ok {
			return invalidf("missing column %q", c.Name)
		}
		if v.Type() != c.Type {
			return invalidf("column %q: want %s, have %s", c.Name, c.Type, v.Type())
		}
	}
	return nil
}

// projection maps column names to schema indices. Empty names select all columns.
func projection(schema model.Schema, names []string) ([]int, error) {
	if len(names) == 0 {
		proj := make([]int, schema.Len())
		for i := range proj {
			proj[i] = i
		}
		return proj, nil
	}
	proj := make([]int, 0, len(names))
	for _, n := range names {
		idx := schema.Index(n)
		if idx < 0 {
			return nil, invalidf("unknown column %q", n)
		}
		if !slices.Contains(proj, idx) {
			proj = append(proj, idx)
		}
	}
	return proj, nil
}

// Flush writes every non-empty memtable as a block. With sync the data files
// are padded and synced as well.
func (e *Engine) Flush(ctx context.Context, sync bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed.Load() {
		return ErrClosed
	}
	if e.shards == nil {
		return nil
	}
	return classify(e.forEachShard(ctx, func(ctx context.Context, id int) error {
		return e.shards[id].Flush(ctx, sync)
	}))
}

// Shutdown persists the table manifest, every shard and the vin registry, then
// releases all files. Every persistence failure is reported.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	var errs []error
	if e.manifest != nil {
		if err := e.manifest.Save(e.fs, filepath.Join(e.dir, manifest.FileName)); err != nil {
			errs = append(errs, fmt.Errorf("save table manifest: %w", err))
		}
	}
	if e.shards != nil {
		if err := e.forEachShard(ctx, func(ctx context.Context, id int) error {
			return e.shards[id].Persist(ctx)
		}); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.vins.Save(e.fs, filepath.Join(e.dir, vinsFile)); err != nil {
		errs = append(errs, fmt.Errorf("save vin registry: %w", err))
	}
	errs = append(errs, e.closeShards())
	if err := e.lock.Close(); err != nil {
		errs = append(errs, fmt.Errorf("release directory lock: %w", err))
	}

	err := errors.Join(errs...)
	if err != nil {
		e.logger.Error("shutdown failed", "dir", e.dir, "error", err)
		return classify(err)
	}
	e.logger.Info("engine shut down", "dir", e.dir, "vins", e.vins.Len(), "duration", time.Since(start))
	return nil
}

func (e *Engine) closeShards() error {
	var errs []error
	for _, s := range e.shards {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("shard %d: close: %w", s.ID(), err))
		}
	}
	e.shards = nil
	return errors.Join(errs...)
}

// Stats is a point-in-time view of the engine.
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
	Shards       []shard.Stats
}

// Stats returns the engine's counters summed over all shards.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := Stats{
		MemoryUsage: e.rc.MemoryUsage(),
		MemoryLimit: e.rc.MemoryLimit(),
		Workers:     e.rc.Workers(),
	}
	if e.vins != nil {
		st.Vins = e.vins.Len()
	}
	for _, s := range e.shards {
		ss := s.Stats()
		st.Blocks += ss.Blocks
		st.MemTableRows += ss.MemTableRows
		st.CacheEntries += ss.CacheEntries
		st.CacheBytes += ss.CacheBytes
		st.CacheHits += ss.CacheHits
		st.CacheMisses += ss.CacheMisses
		st.DataBytes += ss.DataBytes
		st.Shards = append(st.Shards, ss)
	}
	return st
}
