// Package blockmeta describes the flushed blocks of one shard.
//
// A [BlockMeta] records a block's row count, the min and max timestamp of every
// entity slot (svid) in the shard, and the location of each compressed column in
// the shard's data file. The [Index] is append-only: blocks are addressed by a
// stable [Handle] that never changes for the life of the data directory, which
// makes it usable as a read-cache key.
package blockmeta
