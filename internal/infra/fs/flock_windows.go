//go:build windows
// +build windows

package fs

import (
	"os"
)

// flockTryExclusive attempts a non-blocking exclusive lock
// Note: Windows doesn't have direct flock support, so this is a no-op for now.
// In production, this should use Windows API LockFileEx.
func flockTryExclusive(f *os.File) error {
	return nil
}

// flockUnlock releases the lock on the file
func flockUnlock(f *os.File) error {
	return nil
}

// flockWouldBlock reports whether err indicates the lock is held elsewhere
func flockWouldBlock(err error) bool {
	return false
}
