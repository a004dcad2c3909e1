// Package resource implements engine-wide resource governance.
//
// A single [Controller] is shared by every shard of an engine:
//
//   - Memory: read caches charge decompressed column arrays against a global
//     budget (non-blocking, fail-fast; a full budget means "do not cache")
//   - Concurrency: bounds how many shards load, flush or persist in parallel
//   - IO: token bucket that throttles block writes to the data files
//
// All methods are safe for concurrent use and treat a nil *Controller as
// "unlimited", so callers need no nil checks.
package resource
