// Package fs provides filesystem abstractions for testability and fault injection.
//
// The package defines two key interfaces:
//
//   - [File]: an open file with read/write/sync capabilities
//   - [FileSystem]: filesystem operations (open, remove, rename, lock)
//
// # Implementations
//
//   - [LocalFS]: production implementation using the os package
//   - [FaultyFS]: test utility that injects write, sync, close, open and rename errors
//
// [WriteFileAtomic] writes metadata files through a temporary file and a rename, so a
// crash leaves either the old or the new contents on disk.
//
// # Design Notes
//
// This package does not take context.Context parameters. Local filesystem
// operations are not interruptible at the syscall level.
package fs
