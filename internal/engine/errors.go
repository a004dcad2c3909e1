package engine

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vinstore/internal/codec"
	"github.com/hupe1980/vinstore/internal/fs"
	"github.com/hupe1980/vinstore/internal/memtable"
	"github.com/hupe1980/vinstore/internal/metafile"
	"github.com/hupe1980/vinstore/internal/vinreg"
	"github.com/hupe1980/vinstore/model"
)

var (
	// ErrInvalidArgument is returned for malformed requests (incomplete rows, unknown columns, ...).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned for an unknown table or an unknown vin on a single-vin query.
	ErrNotFound = errors.New("not found")

	// ErrIO is returned when the underlying storage fails.
	ErrIO = errors.New("io error")

	// ErrExceedCapacity is returned when a fixed capacity (vin registry) is exhausted.
	ErrExceedCapacity = errors.New("capacity exceeded")

	// ErrNotSupported is returned for operations this build does not implement.
	ErrNotSupported = errors.New("not supported")

	// ErrCorrupt is returned when persisted data fails a structural check on load.
	ErrCorrupt = errors.New("data corruption detected")

	// ErrClosed is returned when an operation is attempted after Shutdown.
	ErrClosed = errors.New("engine closed")
)

// classify wraps an error from an internal package with the matching sentinel.
// Errors that already carry a sentinel are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{
		ErrInvalidArgument, ErrNotFound, ErrIO, ErrExceedCapacity, ErrNotSupported, ErrCorrupt, ErrClosed,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	switch {
	case errors.Is(err, memtable.ErrIncompleteRow), errors.Is(err, model.ErrTypeMismatch):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, vinreg.ErrFull):
		return fmt.Errorf("%w: %w", ErrExceedCapacity, err)
	case errors.Is(err, metafile.ErrCorrupt), errors.Is(err, codec.ErrCorrupt):
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	case errors.Is(err, fs.ErrLocked):
		return fmt.Errorf("%w: data directory in use: %w", ErrIO, err)
	default:
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
