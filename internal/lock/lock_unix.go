//go:build unix

package lock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// tryLock takes LOCK_EX|LOCK_NB on f. flock locks belong to the open file
// description, so two Acquire calls in one process still exclude each other.
func tryLock(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EWOULDBLOCK) {
		return fmt.Errorf("%w: %s", ErrHeld, f.Name())
	}
	return fmt.Errorf("flock: %w", err)
}
