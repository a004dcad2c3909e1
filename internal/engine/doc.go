// Package engine implements the time-series storage engine.
//
// The engine orchestrates:
//   - the vin registry mapping vins to dense 16-bit ids
//   - 16 shards, each with its own memtable, block index, read cache and data file
//   - routing of every write and query to the shard vid & 15
//   - latest, time-range, aggregate and downsample queries
//   - startup load and shutdown persistence of every metadata file
//
// Only the vin registry is shared across shards, and its lock is held just for
// the id lookup, never for the data write.
package engine
