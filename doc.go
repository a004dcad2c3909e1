// Package vinstore provides an embedded time-series storage engine for Go.
//
// A data directory holds one table with a fixed, flat schema. Rows are keyed
// by a 17-byte vin (the entity) and a timestamp. Writes are buffered per
// shard in a columnar memtable and flushed as compressed column blocks; a
// per-shard block index prunes reads by time range, and a per-shard LRU cache
// keeps decompressed block columns hot.
//
// # Quick Start
//
//	db, err := vinstore.Connect("./data")
//	if err != nil {
//	    return err
//	}
//	defer db.Shutdown(ctx)
//
//	schema := model.NewSchema(
//	    model.Column{Name: "speed", Type: model.ColumnTypeInteger},
//	    model.Column{Name: "temp", Type: model.ColumnTypeDouble},
//	)
//	_ = db.CreateTable(ctx, "vehicles", schema)
//
//	_ = db.Write(ctx, model.WriteRequest{Table: "vehicles", Rows: rows})
//
//	latest, _ := db.ExecuteLatestQuery(ctx, model.LatestQueryRequest{
//	    Table: "vehicles",
//	    Vins:  []model.Vin{vin},
//	})
//
// # Queries
//
//   - Latest: newest row per vin; unknown vins are skipped.
//   - Time range: all rows of one vin in [lower, upper), ordered by timestamp.
//   - Aggregate: AVG or MAX of one column over [lower, upper), optionally filtered.
//   - Downsample: the same per fixed-width window starting at lower.
//
// # Durability
//
// Shutdown flushes every memtable, syncs the data files and writes the block
// indexes, the latest-row caches, the vin registry and the table manifest.
// Rows written after the last Shutdown are lost on a crash. All metadata files
// are checksummed and written atomically; a damaged file makes Connect fail
// with ErrCorrupt.
//
// # Errors
//
// Every error returned by DB methods wraps one of the package sentinels;
// CodeOf maps it to a Code.
package vinstore
