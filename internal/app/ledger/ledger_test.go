package ledger

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/reviewfleet/internal/adapter/gateway/github"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/plan"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "ledger.ndjson"))
}

func TestCanonicalizeFieldOrderInsensitive(t *testing.T) {
	a, err := Canonicalize(json.RawMessage(`{"b":1,"a":2}`))
	require.NoError(t, err)
	b, err := Canonicalize(json.RawMessage(`{"a":2,  "b": 1}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonicalizeDistinguishesValues(t *testing.T) {
	a, err := Canonicalize(json.RawMessage(`{"op":"close","target":"issue#1"}`))
	require.NoError(t, err)
	b, err := Canonicalize(json.RawMessage(`{"op":"close","target":"issue#2"}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRecordAndAlreadyExecuted(t *testing.T) {
	l := newTestLedger(t)
	action := json.RawMessage(`{"op":"comment","target":"issue#1","body":"hi"}`)

	done, err := l.AlreadyExecuted("o/r", action)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, l.Record("o/r", action, StatusOK, "created"))

	// Same action, different field order
	reordered := json.RawMessage(`{"target":"issue#1","body":"hi","op":"comment"}`)
	done, err = l.AlreadyExecuted("o/r", reordered)
	require.NoError(t, err)
	assert.True(t, done)

	// Same action on a different repo is a different fact
	done, err = l.AlreadyExecuted("o/other", action)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestFailedEntriesDoNotBlockRetry(t *testing.T) {
	l := newTestLedger(t)
	action := json.RawMessage(`{"op":"close","target":"issue#3"}`)

	require.NoError(t, l.Record("o/r", action, StatusFailed, "host error"))

	done, err := l.AlreadyExecuted("o/r", action)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestEntriesMissingFile(t *testing.T) {
	l := newTestLedger(t)
	entries, err := l.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testActions() []plan.GHAction {
	return []plan.GHAction{
		{Op: "comment", Target: "issue#1", Body: "Fixed."},
		{Op: "close", Target: "issue#1"},
		{Op: "label", Target: "pr#2", Labels: []string{"reviewed", "automated"}},
	}
}

func TestExecuteAllRunsEveryAction(t *testing.T) {
	l := newTestLedger(t)
	api := github.NewMockHostAPI()

	require.NoError(t, l.ExecuteAll(context.Background(), "o/r", testActions(), api))

	assert.Equal(t, 3, api.CallCount())
	assert.Equal(t, "reviewed,automated", api.Calls[2].Args["labels"])

	entries, err := l.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, StatusOK, e.Status)
	}
}

func TestExecuteAllIdempotentOnRerun(t *testing.T) {
	l := newTestLedger(t)
	api := github.NewMockHostAPI()
	actions := testActions()

	require.NoError(t, l.ExecuteAll(context.Background(), "o/r", actions, api))
	require.NoError(t, l.ExecuteAll(context.Background(), "o/r", actions, api))
	require.NoError(t, l.ExecuteAll(context.Background(), "o/r", actions, api))

	// Reruns produce no new external side effects
	assert.Equal(t, 3, api.CallCount())

	// And no new ledger lines: replaying the same plan any number of
	// times leaves the file unchanged
	entries, err := l.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, StatusOK, e.Status)
	}
}

func TestExecuteAllPartialFailureIsolation(t *testing.T) {
	l := newTestLedger(t)
	api := github.NewMockHostAPI()
	api.FailTargets["issue#1"] = true

	err := l.ExecuteAll(context.Background(), "o/r", testActions(), api)
	require.ErrorIs(t, err, ErrActionsFailed)

	// Every action was still attempted
	assert.Equal(t, 3, api.CallCount())

	entries, lerr := l.Entries()
	require.NoError(t, lerr)
	require.Len(t, entries, 3)
	assert.Equal(t, StatusFailed, entries[0].Status)
	assert.Equal(t, StatusFailed, entries[1].Status)
	assert.Equal(t, StatusOK, entries[2].Status)
}

func TestExecuteAllRetriesFailedActions(t *testing.T) {
	l := newTestLedger(t)
	api := github.NewMockHostAPI()
	api.FailTargets["issue#1"] = true

	actions := []plan.GHAction{{Op: "close", Target: "issue#1"}}
	require.Error(t, l.ExecuteAll(context.Background(), "o/r", actions, api))

	// Host recovered; the failed action runs again
	api.FailTargets["issue#1"] = false
	require.NoError(t, l.ExecuteAll(context.Background(), "o/r", actions, api))
	assert.Equal(t, 2, api.CallCount())
}
