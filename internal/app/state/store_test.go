package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(t.TempDir(), 5*time.Second)
}

func TestInitCreatesDocumentOnce(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init("run-1"))

	doc, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, doc.Version)
	assert.Empty(t, doc.Repos)
	assert.Empty(t, doc.Items)
}

func TestInitNeverOverwritesExistingState(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init("run-1"))
	require.NoError(t, s.RecordRepoOutcome("o/r", "completed", 60, 2, 1))

	// A resumed run re-inits; prior outcomes must survive
	require.NoError(t, s.Init("run-1"))

	doc, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "completed", doc.Repos["o/r"].Outcome)
}

func TestRecordRepoOutcomeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init("run-1"))
	require.NoError(t, s.RecordRepoOutcome("o/r", "completed", 60, 2, 1))

	doc, err := s.Load()
	require.NoError(t, err)
	rec := doc.Repos["o/r"]
	assert.Equal(t, "completed", rec.Outcome)
	assert.Equal(t, 60, rec.DurationSeconds)
	assert.Equal(t, 2, rec.ItemsFixed)
	assert.Equal(t, 1, rec.ItemsSkipped)
	assert.NotEmpty(t, rec.LastReview)
}

func TestRecordItemOutcome(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init("run-1"))

	key := ItemKey{Repo: "o/r", Type: "issue", Number: 42}
	require.NoError(t, s.RecordItemOutcome(key, "fixed", "patched in abc123"))

	doc, err := s.Load()
	require.NoError(t, err)
	item := doc.Items["o/r#issue-42"]
	assert.Equal(t, "issue", item.Type)
	assert.Equal(t, "fixed", item.Outcome)
	assert.Equal(t, "patched in abc123", item.Notes)
}

func TestConcurrentDisjointUpdatesBothSurvive(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init("run-1"))

	var wg sync.WaitGroup
	repos := []string{"org/alpha", "org/beta", "org/gamma", "org/delta"}
	for _, repo := range repos {
		wg.Add(1)
		go func(repo string) {
			defer wg.Done()
			assert.NoError(t, s.RecordRepoOutcome(repo, "completed", 10, 1, 0))
		}(repo)
	}
	wg.Wait()

	// All writes survive and the document is still valid JSON
	raw, err := os.ReadFile(filepath.Join(s.dir, stateFile))
	require.NoError(t, err)
	var doc ReviewState
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, repo := range repos {
		assert.Equal(t, "completed", doc.Repos[repo].Outcome, repo)
	}
}

func TestUpdateSurfacesTransformError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init("run-1"))

	wantErr := assert.AnError
	err := s.Update(func(doc *ReviewState) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
}

func TestLoadCorruptDocumentIsHardFault(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, stateFile), []byte("{broken"), 0o644))

	_, err := s.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operator attention")
}

func TestIsRecentlyReviewed(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Init("run-1"))

	// Unknown repo
	recent, err := s.IsRecentlyReviewed("o/unknown", 7)
	require.NoError(t, err)
	assert.False(t, recent)

	require.NoError(t, s.RecordRepoOutcome("o/r", "completed", 60, 1, 0))

	recent, err = s.IsRecentlyReviewed("o/r", 7)
	require.NoError(t, err)
	assert.True(t, recent)

	// Pretend the review happened 10 days ago
	s.now = func() time.Time { return time.Now().Add(10 * 24 * time.Hour) }
	recent, err = s.IsRecentlyReviewed("o/r", 7)
	require.NoError(t, err)
	assert.False(t, recent)
}

func TestIsRecentlyReviewedMissingState(t *testing.T) {
	s := newTestStore(t)
	recent, err := s.IsRecentlyReviewed("o/r", 7)
	require.NoError(t, err)
	assert.False(t, recent)
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, found, err := s.LoadCheckpoint()
	require.NoError(t, err)
	assert.False(t, found)

	cp := &Checkpoint{
		RunID:          "run-1",
		Mode:           "full",
		ReposTotal:     3,
		ReposCompleted: 1,
		ReposPending:   2,
		CompletedRepos: []string{"org/alpha"},
		PendingRepos:   []string{"org/beta", "org/gamma"},
	}
	require.NoError(t, s.SaveCheckpoint(cp))

	loaded, found, err := s.LoadCheckpoint()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, []string{"org/beta", "org/gamma"}, loaded.PendingRepos)
	assert.NotEmpty(t, loaded.Timestamp)
}

func TestClearCheckpointIdempotent(t *testing.T) {
	s := newTestStore(t)

	// Missing file is not an error
	require.NoError(t, s.ClearCheckpoint())

	require.NoError(t, s.SaveCheckpoint(&Checkpoint{RunID: "run-1"}))
	require.NoError(t, s.ClearCheckpoint())
	require.NoError(t, s.ClearCheckpoint())

	// The state directory itself must survive
	_, err := os.Stat(s.dir)
	assert.NoError(t, err)
}

func TestItemKeyEncoding(t *testing.T) {
	key := ItemKey{Repo: "octo/repo", Type: "pr", Number: 7}
	assert.Equal(t, "octo/repo#pr-7", key.String())

	parsed, err := ParseItemKey("octo/repo#pr-7")
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	_, err = ParseItemKey("garbage")
	assert.Error(t, err)
}
