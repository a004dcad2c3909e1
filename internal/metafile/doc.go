// Package metafile frames and checksums the engine's metadata files.
//
// Every metadata file is a 16-byte header followed by a payload:
//
//	Magic    (4 bytes)
//	Version  (4 bytes)
//	Checksum (4 bytes) CRC32C of payload
//	Length   (4 bytes) payload length
//	Payload
//
// All integers, in the header and in payloads built with [Encoder], are
// host-native-endian. Data directories are therefore not portable between
// machines of different byte order.
//
// Files are replaced atomically (temporary file plus rename). A missing file is
// reported as an error wrapping [fs.ErrNotExist]; any structural mismatch is
// reported as [ErrCorrupt].
package metafile
