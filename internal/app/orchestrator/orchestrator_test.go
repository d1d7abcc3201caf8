package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/reviewfleet/internal/adapter/gateway/agent"
	"github.com/YoshitsuguKoike/reviewfleet/internal/adapter/gateway/github"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/governor"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/ledger"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/monitor"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/plan"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/state"
)

// scriptDriver wraps MockDriver so each session's output can be scripted
// the moment it starts, before the monitor ever polls it.
type scriptDriver struct {
	*agent.MockDriver
	mu     sync.Mutex
	script func(d *agent.MockDriver, sessionID, repo string)
}

func (d *scriptDriver) Start(ctx context.Context, repo, workDir string) (string, error) {
	id, err := d.MockDriver.Start(ctx, repo, workDir)
	if err != nil {
		return "", err
	}
	d.mu.Lock()
	script := d.script
	d.mu.Unlock()
	if script != nil {
		script(d.MockDriver, id, repo)
	}
	return id, nil
}

type harness struct {
	orc    *Orchestrator
	driver *scriptDriver
	api    *github.MockHostAPI
	store  *state.FileStore
	led    *ledger.Ledger
	gov    *governor.Governor
	dir    string
}

func newHarness(t *testing.T, script func(d *agent.MockDriver, sessionID, repo string)) *harness {
	t.Helper()
	dir := t.TempDir()

	driver := &scriptDriver{MockDriver: agent.NewMockDriver(), script: script}
	mon := monitor.New(monitor.Config{QuietPeriod: time.Hour, HysteresisK: 2}, driver)
	gov := governor.New(governor.Config{Target: 4, ErrorThreshold: 5, ErrorWindow: time.Minute}, nil, mon)
	store := state.NewFileStore(filepath.Join(dir, "state"), 2*time.Second)
	led := ledger.New(filepath.Join(dir, "ledger.ndjson"))
	api := github.NewMockHostAPI()
	plans := plan.NewFileRepository(filepath.Join(dir, "plans"))

	orc := New(gov, mon, store, led, driver, api, plans, nil, Config{
		RunID:           "run-test",
		Mode:            "full",
		PollInterval:    5 * time.Millisecond,
		SessionTimeout:  5 * time.Second,
		RefreshInterval: 50 * time.Millisecond,
		WorkRoot:        filepath.Join(dir, "work"),
		StatePath:       filepath.Join(dir, "state", "state.json"),
		LedgerPath:      filepath.Join(dir, "ledger.ndjson"),
	})
	return &harness{orc: orc, driver: driver, api: api, store: store, led: led, gov: gov, dir: dir}
}

func writePlan(t *testing.T, dir string, p *plan.Plan) {
	t.Helper()
	planDir := filepath.Join(dir, "plans")
	require.NoError(t, os.MkdirAll(planDir, 0o755))
	data, err := json.Marshal(p)
	require.NoError(t, err)
	name := plan.PlanFileName(p.Repo)
	require.NoError(t, os.WriteFile(filepath.Join(planDir, name), data, 0o644))
}

const completeLine = `{"type":"result","subtype":"success"}` + "\n"

func completeScript(d *agent.MockDriver, sessionID, repo string) {
	d.SetOutput(sessionID, completeLine)
}

func TestRun_SingleRepoCompletes(t *testing.T) {
	h := newHarness(t, completeScript)
	writePlan(t, h.dir, &plan.Plan{
		SchemaVersion: plan.CurrentSchemaVersion,
		Repo:          "octo/widgets",
		Items: []plan.Item{
			{Type: "issue", Number: 7, Outcome: "fixed", Notes: "patched"},
			{Type: "pr", Number: 12, Outcome: "skipped", Notes: "needs design input"},
		},
		GHActions: []plan.GHAction{
			{Op: plan.OpComment, Target: "issue#7", Body: "fixed in latest pass"},
			{Op: plan.OpClose, Target: "issue#7"},
		},
	})

	err := h.orc.Run(context.Background(), []string{"octo/widgets"})
	require.NoError(t, err)

	doc, err := h.store.Load()
	require.NoError(t, err)
	res, ok := doc.Repos["octo/widgets"]
	require.True(t, ok)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, 1, res.ItemsFixed)
	assert.Equal(t, 1, res.ItemsSkipped)

	assert.Equal(t, 2, h.api.CallCount())

	// Clean completion leaves no resume checkpoint behind
	_, found, err := h.store.LoadCheckpoint()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRun_MultipleReposAllComplete(t *testing.T) {
	h := newHarness(t, completeScript)
	repos := []string{"octo/a", "octo/b", "octo/c", "octo/d", "octo/e"}

	err := h.orc.Run(context.Background(), repos)
	require.NoError(t, err)

	doc, err := h.store.Load()
	require.NoError(t, err)
	for _, repo := range repos {
		res, ok := doc.Repos[repo]
		require.True(t, ok, "missing result for %s", repo)
		assert.Equal(t, OutcomeCompleted, res.Outcome)
	}
}

func TestRun_SessionErrorRecorded(t *testing.T) {
	h := newHarness(t, func(d *agent.MockDriver, sessionID, repo string) {
		d.SetOutput(sessionID, `{"type":"result","is_error":true}`+"\n")
	})

	err := h.orc.Run(context.Background(), []string{"octo/broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 repos failed")

	doc, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, doc.Repos["octo/broken"].Outcome)
	assert.Equal(t, 1, h.gov.Status().ErrorCount)
}

func TestRun_SessionTimeout(t *testing.T) {
	h := newHarness(t, func(d *agent.MockDriver, sessionID, repo string) {
		d.SetOutput(sessionID, "Thinking about the approach...\n")
	})
	h.orc.cfg.SessionTimeout = 60 * time.Millisecond

	err := h.orc.Run(context.Background(), []string{"octo/slow"})
	require.Error(t, err)

	doc, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, OutcomeTimeout, doc.Repos["octo/slow"].Outcome)
}

func TestRun_InterruptionWritesCheckpoint(t *testing.T) {
	started := make(chan struct{}, 8)
	h := newHarness(t, func(d *agent.MockDriver, sessionID, repo string) {
		// Never reaches a terminal state; the run only ends via cancel
		d.SetOutput(sessionID, "Generating...\n")
		started <- struct{}{}
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.orc.Run(ctx, []string{"octo/a", "octo/b"})
	}()

	<-started
	cancel()
	err := <-errCh
	require.ErrorIs(t, err, ErrInterrupted)

	cp, found, loadErr := h.store.LoadCheckpoint()
	require.NoError(t, loadErr)
	require.True(t, found)
	assert.Equal(t, "run-test", cp.RunID)
	assert.Equal(t, 2, cp.ReposTotal)
	assert.Equal(t, 0, cp.ReposCompleted)
	assert.Equal(t, 2, cp.ReposPending)
	assert.ElementsMatch(t, []string{"octo/a", "octo/b"}, cp.PendingRepos)
}

func TestRun_BreakerOpenHaltsWithCheckpoint(t *testing.T) {
	h := newHarness(t, completeScript)
	for i := 0; i < 5; i++ {
		h.gov.RecordError()
	}
	require.True(t, h.gov.Status().CircuitBreakerOpen)

	err := h.orc.Run(context.Background(), []string{"octo/a"})
	require.ErrorIs(t, err, ErrBreakerOpen)

	cp, found, loadErr := h.store.LoadCheckpoint()
	require.NoError(t, loadErr)
	require.True(t, found)
	assert.Equal(t, []string{"octo/a"}, cp.PendingRepos)
}

func TestRun_StallEscalationRecoversSession(t *testing.T) {
	h := newHarness(t, func(d *agent.MockDriver, sessionID, repo string) {
		d.SetOutput(sessionID, "Working on it\n")
	})
	// Tiny quiet period so the session stalls almost immediately, then
	// completes once the interrupt lands
	mon := monitor.New(monitor.Config{QuietPeriod: 20 * time.Millisecond, HysteresisK: 2}, h.driver)
	h.orc.mon = mon

	var once sync.Once
	h.driver.script = func(d *agent.MockDriver, sessionID, repo string) {
		d.SetOutput(sessionID, "Working on it\n")
		go func() {
			// Complete the session as soon as recovery pokes it
			for i := 0; i < 400; i++ {
				if d.Interrupts(sessionID) > 0 {
					once.Do(func() {
						d.AppendOutput(sessionID, completeLine)
					})
					return
				}
				time.Sleep(5 * time.Millisecond)
			}
		}()
	}

	err := h.orc.Run(context.Background(), []string{"octo/stuck"})
	require.NoError(t, err)

	doc, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, doc.Repos["octo/stuck"].Outcome)
}

func TestRun_DriverFailureDuringRecovery(t *testing.T) {
	h := newHarness(t, func(d *agent.MockDriver, sessionID, repo string) {
		d.SetOutput(sessionID, "Working on it\n")
		d.FailControl = true
	})
	mon := monitor.New(monitor.Config{QuietPeriod: 20 * time.Millisecond, HysteresisK: 2}, h.driver)
	h.orc.mon = mon

	err := h.orc.Run(context.Background(), []string{"octo/unreachable"})
	require.Error(t, err)

	doc, err := h.store.Load()
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, doc.Repos["octo/unreachable"].Outcome)
}

func TestRun_MissingPlanStillCompletes(t *testing.T) {
	h := newHarness(t, completeScript)

	err := h.orc.Run(context.Background(), []string{"octo/noplan"})
	require.NoError(t, err)

	doc, err := h.store.Load()
	require.NoError(t, err)
	res := doc.Repos["octo/noplan"]
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Zero(t, res.ItemsFixed)
	assert.Equal(t, 0, h.api.CallCount())
}

func TestRun_FailedActionReportedButRunContinues(t *testing.T) {
	h := newHarness(t, completeScript)
	h.api.FailTargets["issue#9"] = true
	writePlan(t, h.dir, &plan.Plan{
		SchemaVersion: plan.CurrentSchemaVersion,
		Repo:          "octo/one",
		GHActions: []plan.GHAction{
			{Op: plan.OpComment, Target: "issue#9", Body: "note"},
			{Op: plan.OpComment, Target: "issue#10", Body: "note"},
		},
	})
	writePlan(t, h.dir, &plan.Plan{
		SchemaVersion: plan.CurrentSchemaVersion,
		Repo:          "octo/two",
		GHActions: []plan.GHAction{
			{Op: plan.OpComment, Target: "issue#1", Body: "note"},
		},
	})

	err := h.orc.Run(context.Background(), []string{"octo/one", "octo/two"})
	require.Error(t, err)

	// Every action was still attempted despite the one failure
	assert.Equal(t, 3, h.api.CallCount())

	doc, loadErr := h.store.Load()
	require.NoError(t, loadErr)
	assert.Equal(t, OutcomeCompleted, doc.Repos["octo/one"].Outcome)
	assert.Equal(t, OutcomeCompleted, doc.Repos["octo/two"].Outcome)
}

func TestRun_SkipsRecentlyReviewed(t *testing.T) {
	h := newHarness(t, completeScript)
	h.orc.cfg.SkipReviewedDays = 7

	require.NoError(t, h.store.Init("earlier-run"))
	require.NoError(t, h.store.RecordRepoOutcome("octo/fresh", OutcomeCompleted, 10, 1, 0))

	err := h.orc.Run(context.Background(), []string{"octo/fresh", "octo/stale"})
	require.NoError(t, err)

	doc, loadErr := h.store.Load()
	require.NoError(t, loadErr)
	assert.Contains(t, doc.Repos, "octo/stale")
	// The fresh repo's earlier result is untouched; no new session ran
	assert.Equal(t, 1, doc.Repos["octo/fresh"].ItemsFixed)
}

func TestRun_PerRepoSkipOverride(t *testing.T) {
	h := newHarness(t, completeScript)
	// Global skip disabled; only the override applies
	h.orc.cfg.SkipOverrides = map[string]int{"octo/fresh": 30}

	require.NoError(t, h.store.Init("earlier-run"))
	require.NoError(t, h.store.RecordRepoOutcome("octo/fresh", OutcomeCompleted, 10, 2, 0))

	err := h.orc.Run(context.Background(), []string{"octo/fresh"})
	require.NoError(t, err)

	doc, loadErr := h.store.Load()
	require.NoError(t, loadErr)
	assert.Equal(t, 2, doc.Repos["octo/fresh"].ItemsFixed)
}

func TestRun_ArchivesOnCleanCompletion(t *testing.T) {
	h := newHarness(t, completeScript)
	arch := &fakeArchive{}
	h.orc.archive = arch

	err := h.orc.Run(context.Background(), []string{"octo/widgets"})
	require.NoError(t, err)

	require.Equal(t, "run-test", arch.runID)
	assert.Contains(t, arch.files, "state.json")
}

type fakeArchive struct {
	mu    sync.Mutex
	runID string
	files map[string][]byte
}

func (f *fakeArchive) ArchiveRun(ctx context.Context, runID string, files map[string][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runID = runID
	f.files = files
	return nil
}

func (f *fakeArchive) ListRuns(ctx context.Context) ([]string, error) {
	return nil, nil
}
