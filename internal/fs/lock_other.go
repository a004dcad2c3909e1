//go:build !unix

package fs

import (
	"errors"
	"io"
	"os"
)

// Without flock the lock file is created exclusively and removed on release.
type exclLock struct {
	f    *os.File
	name string
}

func lockFile(name string) (io.Closer, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrLocked
		}
		return nil, err
	}
	return &exclLock{f: f, name: name}, nil
}

func (l *exclLock) Close() error {
	err := l.f.Close()
	if rerr := os.Remove(l.name); err == nil {
		err = rerr
	}
	return err
}
