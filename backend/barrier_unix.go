//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package backend

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Barrier forces all bytes written to storage so far to be durable before
// it returns. The commit protocol issues one of these before and one after
// the commit block write, so that a crash can never observe the commit
// block without also observing everything that precedes it.
//
// When storage is backed by a real file descriptor this uses fdatasync.
// Storage that cannot expose an *os.File (test fakes, in-memory devices)
// is treated as having nothing to flush.
func Barrier(s Storage) error {
	osFile, err := s.Sys()
	if err != nil {
		return nil
	}
	if err := unix.Fdatasync(int(osFile.Fd())); err != nil {
		return fmt.Errorf("journal barrier: fdatasync failed: %w", err)
	}
	return nil
}
