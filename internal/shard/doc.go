// Package shard implements one partition of the entity space.
//
// A Shard owns a memtable, the block index of its data file, a strict-LRU read
// cache of decompressed column arrays and a per-slot latest-row cache. All
// state is guarded by the shard's own RWMutex: writes and flushes take the
// write lock, queries take the read lock. No two shards share a lock.
//
// Files per shard inside the data directory:
//
//	shard-NNN.data    compressed column payloads, appended
//	shard-NNN.meta    block index
//	shard-NNN.latest  latest-row cache
package shard
