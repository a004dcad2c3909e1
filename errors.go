package vinstore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vinstore/internal/engine"
)

var (
	// ErrInvalidArgument is returned for malformed requests such as incomplete rows.
	ErrInvalidArgument = engine.ErrInvalidArgument

	// ErrNotFound is returned for an unknown table, or an unknown vin on a single-vin query.
	ErrNotFound = engine.ErrNotFound

	// ErrIO is returned when the underlying storage fails.
	ErrIO = engine.ErrIO

	// ErrExceedCapacity is returned when the vin registry is full.
	ErrExceedCapacity = engine.ErrExceedCapacity

	// ErrNotSupported is returned for operations this build does not implement.
	ErrNotSupported = engine.ErrNotSupported

	// ErrCorrupt is returned by Connect when persisted data fails a structural check.
	ErrCorrupt = engine.ErrCorrupt

	// ErrClosed is returned when the database is used after Shutdown.
	ErrClosed = engine.ErrClosed
)

// Code classifies an error returned by a DB method.
type Code uint8

const (
	CodeOK Code = iota
	CodeInvalidArgument
	CodeNotFound
	CodeIOError
	CodeExceedCapacity
	CodeNotSupported
	CodeCorruption
	CodeClosed
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeNotFound:
		return "NotFound"
	case CodeIOError:
		return "IOError"
	case CodeExceedCapacity:
		return "ExceedCapacity"
	case CodeNotSupported:
		return "NotSupported"
	case CodeCorruption:
		return "Corruption"
	case CodeClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Code(%d)", uint8(c))
	}
}

// CodeOf returns the Code of err. Errors that carry none of the package
// sentinels are reported as CodeIOError.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrExceedCapacity):
		return CodeExceedCapacity
	case errors.Is(err, ErrNotSupported):
		return CodeNotSupported
	case errors.Is(err, ErrCorrupt):
		return CodeCorruption
	case errors.Is(err, ErrClosed):
		return CodeClosed
	default:
		return CodeIOError
	}
}

// translateError makes sure every error leaving the package carries a sentinel.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) == CodeIOError && !errors.Is(err, ErrIO) {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return err
}
