// Package ledger implements the append-only idempotency log of
// externally-executed mutating actions. A resumed run consults it before
// touching the host API so crashes never duplicate comments or closes.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Entry statuses. Only StatusOK blocks re-execution; failed attempts
// stay retryable.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
	// StatusSkipped is part of the line format and never blocks
	// re-execution; the executor logs skips instead of ledgering them so
	// replayed runs do not grow the file.
	StatusSkipped = "skipped"
)

// Entry is one NDJSON ledger line
type Entry struct {
	TS      string          `json:"ts"`
	Repo    string          `json:"repo"`
	Action  json.RawMessage `json:"action"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
}

// Ledger appends to and scans a single NDJSON file. Appends within this
// process serialize through the mutex; the file is only ever appended
// to, never rewritten.
type Ledger struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// New creates a ledger backed by path. The file is created lazily on
// first Record.
func New(path string) *Ledger {
	return &Ledger{path: path, now: time.Now}
}

// Canonicalize produces a stable serialization of an action: keys
// sorted, whitespace normalized. Semantically identical actions compare
// equal regardless of field order.
func Canonicalize(action json.RawMessage) (string, error) {
	var v interface{}
	if err := json.Unmarshal(action, &v); err != nil {
		return "", fmt.Errorf("canonicalize action: %w", err)
	}
	// encoding/json marshals map keys in sorted order, which is exactly
	// the canonical form we need
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize action: %w", err)
	}
	return string(b), nil
}

// AlreadyExecuted reports whether an ok entry exists for (repo, action)
func (l *Ledger) AlreadyExecuted(repo string, action json.RawMessage) (bool, error) {
	canonical, err := Canonicalize(action)
	if err != nil {
		return false, err
	}
	entries, err := l.Entries()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Status != StatusOK || e.Repo != repo {
			continue
		}
		got, err := Canonicalize(e.Action)
		if err != nil {
			// A malformed historical line must not unblock a duplicate
			log.Printf("WARN: ledger: unreadable action in entry, treating as non-match: %v", err)
			continue
		}
		if got == canonical {
			return true, nil
		}
	}
	return false, nil
}

// Record appends one entry. Append-only; prior lines are never touched.
func (l *Ledger) Record(repo string, action json.RawMessage, status, message string) error {
	canonical, err := Canonicalize(action)
	if err != nil {
		return err
	}
	entry := Entry{
		TS:      l.now().UTC().Format(time.RFC3339Nano),
		Repo:    repo,
		Action:  json.RawMessage(canonical),
		Status:  status,
		Message: message,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		// The append itself succeeded; losing the fsync is survivable
		log.Printf("WARN: ledger: fsync failed: %v", err)
	}
	return nil
}

// Entries reads all ledger lines. A missing file is an empty ledger.
func (l *Ledger) Entries() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("ledger line corrupt: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	return entries, nil
}
