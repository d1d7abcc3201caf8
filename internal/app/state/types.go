// Package state implements the durable checkpoint store for review runs:
// a lock-guarded JSON document of per-repo and per-item outcomes plus a
// lightweight resume checkpoint.
package state

import (
	"fmt"
	"regexp"
	"strconv"
)

// SchemaVersion is the current review state document schema
const SchemaVersion = 2

// ReviewState is the state.json document for one run. Keys are append or
// overwrite only; nothing is deleted while a run is live.
type ReviewState struct {
	Version int                   `json:"version"`
	Repos   map[string]RepoResult `json:"repos"`
	Items   map[string]ItemResult `json:"items"`
}

// RepoResult records the outcome of one repository's review
type RepoResult struct {
	Outcome         string `json:"outcome"`
	DurationSeconds int    `json:"duration_seconds"`
	ItemsFixed      int    `json:"items_fixed"`
	ItemsSkipped    int    `json:"items_skipped"`
	LastReview      string `json:"last_review"`
}

// ItemResult records the outcome of one review item (issue or PR)
type ItemResult struct {
	Type    string `json:"type"`
	Outcome string `json:"outcome"`
	Notes   string `json:"notes"`
}

// NewReviewState returns an empty document at the current schema version
func NewReviewState() *ReviewState {
	return &ReviewState{
		Version: SchemaVersion,
		Repos:   make(map[string]RepoResult),
		Items:   make(map[string]ItemResult),
	}
}

// ItemKey identifies a review item. The composite string form
// "repo#type-number" exists only at the serialization boundary.
type ItemKey struct {
	Repo   string
	Type   string
	Number int
}

// String encodes the key as "repo#type-number"
func (k ItemKey) String() string {
	return fmt.Sprintf("%s#%s-%d", k.Repo, k.Type, k.Number)
}

var itemKeyRe = regexp.MustCompile(`^(.+)#([a-z]+)-(\d+)$`)

// ParseItemKey decodes "repo#type-number" back into a structured key
func ParseItemKey(s string) (ItemKey, error) {
	match := itemKeyRe.FindStringSubmatch(s)
	if match == nil {
		return ItemKey{}, fmt.Errorf("malformed item key: %q", s)
	}
	n, err := strconv.Atoi(match[3])
	if err != nil {
		return ItemKey{}, fmt.Errorf("malformed item number in key %q: %w", s, err)
	}
	return ItemKey{Repo: match[1], Type: match[2], Number: n}, nil
}

// Checkpoint is the lightweight resume file written on interruption and
// consumed on resume. Deleted on clean completion.
type Checkpoint struct {
	Version        int      `json:"version"`
	Timestamp      string   `json:"timestamp"`
	RunID          string   `json:"run_id"`
	Mode           string   `json:"mode"`
	ReposTotal     int      `json:"repos_total"`
	ReposCompleted int      `json:"repos_completed"`
	ReposPending   int      `json:"repos_pending"`
	CompletedRepos []string `json:"completed_repos"`
	PendingRepos   []string `json:"pending_repos"`
}
