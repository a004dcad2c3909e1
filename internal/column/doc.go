// Package column implements the in-memory column array used by memtables and
// by the shard read cache.
//
// An [Array] is a closed variant over four physical kinds: Int32 (Integer
// columns and the synthetic vid / original-index columns), Int64 (the synthetic
// timestamp column), Float64 (Double columns) and String. Each kind is stored
// densely; strings keep a cumulative offset table over a shared byte buffer.
// Flush compresses an array into a data file and Read is its inverse.
package column
