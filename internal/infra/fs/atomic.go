package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLockTimeout is returned when an exclusive lock cannot be acquired
// within the caller's deadline. A stuck lock must surface to the caller;
// it is never silently skipped.
var ErrLockTimeout = fmt.Errorf("lock acquisition timed out")

// WriteFileAtomic writes data to path via a temp file and rename so that
// any observer sees either the old or the new content, never a partial write.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file to %s: %w", path, err)
	}
	return nil
}

// AtomicWriteJSON marshals v with indentation and writes it atomically
func AtomicWriteJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, b, 0o644)
}

// AcquireFlock acquires an exclusive advisory lock on lockPath, polling
// until timeout elapses. The returned release function unlocks and closes
// the lock file. The lock file itself is left in place; removing it would
// race with other lockers.
func AcquireFlock(lockPath string, timeout time.Duration) (release func() error, err error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", lockPath, err)
	}

	deadline := time.Now().Add(timeout)
	contended := false
	for {
		err := flockTryExclusive(f)
		if err == nil {
			break
		}
		if !flockWouldBlock(err) {
			f.Close()
			return nil, fmt.Errorf("flock %s: %w", lockPath, err)
		}
		if !contended {
			contended = true
			globalLogger.Warn("lock %s is held, waiting up to %s", lockPath, timeout)
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("%w: %s after %s", ErrLockTimeout, lockPath, timeout)
		}
		time.Sleep(50 * time.Millisecond)
	}

	released := false
	return func() error {
		if released {
			return nil
		}
		released = true
		unlockErr := flockUnlock(f)
		closeErr := f.Close()
		if unlockErr != nil {
			return unlockErr
		}
		return closeErr
	}, nil
}
