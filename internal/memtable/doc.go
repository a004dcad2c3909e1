// Package memtable implements a shard's bounded in-memory write buffer.
//
// A MemTable holds one column array per schema column plus three synthetic
// columns (vid, timestamp, original insertion index), all of identical length.
// It tracks per-slot timestamp bounds and the index of each slot's latest row.
// Rows are only ever appended; Flush sorts them by (vid, timestamp), writes one
// compressed block and resets the table for reuse.
package memtable
