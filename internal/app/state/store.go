package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/YoshitsuguKoike/reviewfleet/internal/infra/fs"
)

const (
	stateFile      = "state.json"
	stateLockFile  = "state.lock"
	checkpointFile = "checkpoint.json"
)

// CheckpointStore persists run progress. Update hides the locking
// primitive behind the interface: lock, load, transform, atomic rename,
// unlock.
type CheckpointStore interface {
	Init(runID string) error
	Load() (*ReviewState, error)
	Update(transform func(*ReviewState) error) error
	RecordRepoOutcome(repo, outcome string, durationSeconds, fixed, skipped int) error
	RecordItemOutcome(key ItemKey, outcome, notes string) error
	IsRecentlyReviewed(repo string, days int) (bool, error)
	SaveCheckpoint(cp *Checkpoint) error
	LoadCheckpoint() (*Checkpoint, bool, error)
	ClearCheckpoint() error
}

// FileStore is the flock-backed CheckpointStore. All writers on the same
// host serialize through the lock file; readers may see a stale but
// always valid document.
type FileStore struct {
	dir         string
	lockTimeout time.Duration
	now         func() time.Time
}

// NewFileStore creates a store rooted at dir. lockTimeout bounds how long
// Update waits for the exclusive lock; it is deliberately much shorter
// than any session timeout so a stuck lock is never mistaken for a stuck
// agent.
func NewFileStore(dir string, lockTimeout time.Duration) *FileStore {
	if lockTimeout <= 0 {
		lockTimeout = 10 * time.Second
	}
	return &FileStore{
		dir:         dir,
		lockTimeout: lockTimeout,
		now:         time.Now,
	}
}

func (s *FileStore) statePath() string      { return filepath.Join(s.dir, stateFile) }
func (s *FileStore) lockPath() string       { return filepath.Join(s.dir, stateLockFile) }
func (s *FileStore) checkpointPath() string { return filepath.Join(s.dir, checkpointFile) }

// Init creates the state document iff it does not already exist.
// Idempotent; a pre-existing document is left untouched for resume safety.
func (s *FileStore) Init(runID string) error {
	release, err := fs.AcquireFlock(s.lockPath(), s.lockTimeout)
	if err != nil {
		return fmt.Errorf("init state for run %s: %w", runID, err)
	}
	defer release()

	if _, err := os.Stat(s.statePath()); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat state file: %w", err)
	}

	if err := fs.AtomicWriteJSON(s.statePath(), NewReviewState()); err != nil {
		return fmt.Errorf("write initial state: %w", err)
	}
	return nil
}

// Load reads the current document without taking the writer lock.
// A document that fails to parse is a hard fault: resetting it would
// destroy resumability, so the error goes to the operator.
func (s *FileStore) Load() (*ReviewState, error) {
	return s.load()
}

func (s *FileStore) load() (*ReviewState, error) {
	data, err := os.ReadFile(s.statePath())
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	var doc ReviewState
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("state document corrupt, operator attention required: %w", err)
	}
	if doc.Repos == nil {
		doc.Repos = make(map[string]RepoResult)
	}
	if doc.Items == nil {
		doc.Items = make(map[string]ItemResult)
	}
	return &doc, nil
}

// Update serializes with other writers through the lock, re-reads the
// latest committed document, applies transform, and atomically replaces
// the file. Lock-acquisition timeouts surface as errors; the caller must
// not proceed as if the update happened.
func (s *FileStore) Update(transform func(*ReviewState) error) error {
	release, err := fs.AcquireFlock(s.lockPath(), s.lockTimeout)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	defer release()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := transform(doc); err != nil {
		return fmt.Errorf("state transform: %w", err)
	}
	if err := fs.AtomicWriteJSON(s.statePath(), doc); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// RecordRepoOutcome writes one repository's review outcome, stamping the
// review timestamp.
func (s *FileStore) RecordRepoOutcome(repo, outcome string, durationSeconds, fixed, skipped int) error {
	ts := s.now().UTC().Format(time.RFC3339)
	return s.Update(func(doc *ReviewState) error {
		doc.Repos[repo] = RepoResult{
			Outcome:         outcome,
			DurationSeconds: durationSeconds,
			ItemsFixed:      fixed,
			ItemsSkipped:    skipped,
			LastReview:      ts,
		}
		return nil
	})
}

// RecordItemOutcome writes one review item's outcome
func (s *FileStore) RecordItemOutcome(key ItemKey, outcome, notes string) error {
	return s.Update(func(doc *ReviewState) error {
		doc.Items[key.String()] = ItemResult{
			Type:    key.Type,
			Outcome: outcome,
			Notes:   notes,
		}
		return nil
	})
}

// IsRecentlyReviewed reports whether repo was reviewed within the last
// `days` days. Unknown repos and unparseable timestamps report false.
func (s *FileStore) IsRecentlyReviewed(repo string, days int) (bool, error) {
	doc, err := s.load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	rec, ok := doc.Repos[repo]
	if !ok || rec.LastReview == "" {
		return false, nil
	}
	reviewed, err := time.Parse(time.RFC3339, rec.LastReview)
	if err != nil {
		return false, nil
	}
	age := s.now().UTC().Sub(reviewed)
	return age < time.Duration(days)*24*time.Hour, nil
}

// SaveCheckpoint writes the resume checkpoint atomically
func (s *FileStore) SaveCheckpoint(cp *Checkpoint) error {
	cp.Timestamp = s.now().UTC().Format(time.RFC3339Nano)
	if cp.Version == 0 {
		cp.Version = SchemaVersion
	}
	if err := fs.AtomicWriteJSON(s.checkpointPath(), cp); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint reads the resume checkpoint. A missing file means no
// interruption occurred and is not an error.
func (s *FileStore) LoadCheckpoint() (*Checkpoint, bool, error) {
	data, err := os.ReadFile(s.checkpointPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, false, fmt.Errorf("checkpoint corrupt: %w", err)
	}
	return &cp, true, nil
}

// ClearCheckpoint removes the resume checkpoint. Removing a missing file
// succeeds; the state directory itself is never removed.
func (s *FileStore) ClearCheckpoint() error {
	if err := os.Remove(s.checkpointPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// Ensure FileStore satisfies CheckpointStore
var _ CheckpointStore = (*FileStore)(nil)
