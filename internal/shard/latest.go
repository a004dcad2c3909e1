package shard

import (
	"fmt"

	"github.com/hupe1980/vinstore/internal/fs"
	"github.com/hupe1980/vinstore/internal/metafile"
	"github.com/hupe1980/vinstore/model"
)

const (
	latestMagic   = 0x564C5243 // "VLRC"
	latestVersion = 1
)

// latestRow is the newest flushed row of one slot. values is nil for empty slots.
type latestRow struct {
	ts     int64
	values []model.ColumnValue // schema order
}

// saveLatest persists the non-empty slots.
//
// Payload:
//
//	Count (4 bytes)
//	Entries...
//	  Slot (4 bytes)
//	  Timestamp (8 bytes)
//	  Values in schema order (fixed width, strings length-prefixed)
func saveLatest(fsys fs.FileSystem, path string, rows []latestRow) error {
	enc := metafile.NewEncoder(4096)
	var count uint32
	for _, r := range rows {
		if r.values != nil {
			count++
		}
	}
	enc.Uint32(count)
	for svid, r := range rows {
		if r.values == nil {
			continue
		}
		enc.Uint32(uint32(svid))
		enc.Int64(r.ts)
		for _, v := range r.values {
			enc.Append(v.AppendBinary)
		}
	}
	return metafile.Write(fsys, path, latestMagic, latestVersion, enc.Bytes())
}

func loadLatest(fsys fs.FileSystem, path string, schema model.Schema, slots int) ([]latestRow, error) {
	payload, err := metafile.Read(fsys, path, latestMagic, latestVersion)
	if err != nil {
		return nil, err
	}

	rows := make([]latestRow, slots)
	dec := metafile.NewDecoder(payload)
	n := int(dec.Uint32())
	if n > slots {
		return nil, fmt.Errorf("%w: %d latest rows for %d slots", metafile.ErrCorrupt, n, slots)
	}
	for i := 0; i < n; i++ {
		svid := int(dec.Uint32())
		ts := dec.Int64()
		if dec.Err() != nil {
			return nil, dec.Err()
		}
		if svid >= slots || rows[svid].values != nil {
			return nil, fmt.Errorf("%w: latest slot %d out of range or duplicated", metafile.ErrCorrupt, svid)
		}
		values := make([]model.ColumnValue, schema.Len())
		for c, col := range schema.Columns {
			dec.Consume(func(b []byte) (int, error) {
				v, n, err := model.DecodeColumnValue(col.Type, b)
				values[c] = v
				return n, err
			})
		}
		rows[svid] = latestRow{ts: ts, values: values}
	}
	if err := dec.Finish(); err != nil {
		return nil, err
	}
	return rows, nil
}
