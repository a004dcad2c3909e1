// Package hash provides the CRC32-Castagnoli checksum used by every persisted
// metadata file (schema, vin registry, block index, latest-row cache).
//
// Go's hash/crc32 uses the SSE4.2 / ARM CRC instructions when available.
package hash
