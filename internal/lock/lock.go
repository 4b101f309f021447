// Package lock provides the cross-process session lock that serialises
// migration sessions against one store file.
//
// The lock is a sidecar file next to the store ("<store>.devmigrate.lock")
// held with an exclusive, non-blocking OS lock. Acquisition never waits:
// if another session holds it, Acquire returns ErrHeld at once.
//
// Possession of a Scope is proof that the lock is held. Operations that
// mutate the store take a Scope argument, so the compiler rejects callers
// that skipped locking. The interface cannot be implemented outside this
// package due to the unexported marker method.
package lock

import (
	"errors"
	"fmt"
	"os"
)

// Suffix is appended to the store path to name the lock file.
const Suffix = ".devmigrate.lock"

// ErrHeld is wrapped by Acquire when another session holds the lock.
var ErrHeld = errors.New("session lock held by another process")

// Scope represents the region in which the session lock is held.
type Scope interface {
	// Path returns the lock file path (for logging/diagnostics).
	Path() string

	scopeMarker()
}

// Lock is an acquired session lock. Release it with Close.
type Lock struct {
	f    *os.File
	path string
}

func (*Lock) scopeMarker() {}

// Path implements Scope.
func (l *Lock) Path() string {
	return l.path
}

// PathFor returns the lock file path for a store file.
func PathFor(storePath string) string {
	return storePath + Suffix
}

// Acquire takes the session lock for storePath without waiting.
func Acquire(storePath string) (*Lock, error) {
	path := PathFor(storePath)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := tryLock(f); err != nil {
		f.Close()
		return nil, err
	}
	return &Lock{f: f, path: path}, nil
}

// Close releases the lock. The lock file itself is left in place; removing
// it would race with a session that has just opened it.
func (l *Lock) Close() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// IsHeld reports whether err is or wraps ErrHeld.
func IsHeld(err error) bool {
	return errors.Is(err, ErrHeld)
}
