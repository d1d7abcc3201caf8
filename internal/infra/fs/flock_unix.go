//go:build !windows
// +build !windows

package fs

import (
	"os"
	"syscall"
)

// flockTryExclusive attempts to acquire an exclusive lock without blocking.
// Returns syscall.EWOULDBLOCK when another process holds the lock.
func flockTryExclusive(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

// flockUnlock releases the lock on the file
func flockUnlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}

// flockWouldBlock reports whether err indicates the lock is held elsewhere
func flockWouldBlock(err error) bool {
	return err == syscall.EWOULDBLOCK || err == syscall.EAGAIN
}
