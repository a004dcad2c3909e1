// Package cache provides the shard read cache.
//
// [LRU] holds decompressed column arrays keyed by (block handle, column index).
// Eviction is strict LRU and happens on insert when the resident size would
// exceed the capacity. Admitted bytes are also charged to the engine-wide
// [resource.Controller]; when the global budget is exhausted a value is simply
// not cached and the caller keeps using it uncached.
package cache
