// Package orchestrator drives the review fleet: admission-controlled
// workers, one per repository, each owning a session end to end. Workers
// share nothing in memory except the governor; everything else flows
// through the checkpoint store and the action ledger on disk.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/YoshitsuguKoike/reviewfleet/internal/adapter/gateway/agent"
	"github.com/YoshitsuguKoike/reviewfleet/internal/adapter/gateway/github"
	"github.com/YoshitsuguKoike/reviewfleet/internal/adapter/gateway/storage"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/governor"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/ledger"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/monitor"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/plan"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/state"
)

// Repo review outcomes persisted to the checkpoint store
const (
	OutcomeCompleted = "completed"
	OutcomeError     = "error"
	OutcomeTimeout   = "timeout"
)

// ErrInterrupted reports that the run stopped on cancellation after
// writing a resume checkpoint.
var ErrInterrupted = errors.New("run interrupted, checkpoint written")

// ErrBreakerOpen reports that the circuit breaker halted the run with
// work still pending.
var ErrBreakerOpen = errors.New("circuit breaker open, run halted")

// Config holds the orchestrator's run parameters
type Config struct {
	RunID string
	Mode  string

	PollInterval    time.Duration // Session monitor polling cadence
	SessionTimeout  time.Duration // Hard per-session timeout
	RefreshInterval time.Duration // Governor telemetry refresh period

	WorkRoot   string // Root of per-repo working copies (sync engine keeps them fresh)
	StatePath  string // state.json location, for archiving
	LedgerPath string // ledger.ndjson location, for archiving

	SkipReviewedDays int            // Skip repos reviewed within this many days (0 disables)
	SkipOverrides    map[string]int // Per-repo overrides of SkipReviewedDays
}

// Orchestrator wires the governor, monitor, stores, and gateways into
// the run loop.
type Orchestrator struct {
	gov     *governor.Governor
	mon     *monitor.Monitor
	store   state.CheckpointStore
	led     *ledger.Ledger
	driver  agent.Driver
	api     github.HostAPI
	plans   plan.Repository
	archive storage.ArchiveGateway // nil disables archiving
	cfg     Config
}

// New assembles an orchestrator. archive may be nil.
func New(
	gov *governor.Governor,
	mon *monitor.Monitor,
	store state.CheckpointStore,
	led *ledger.Ledger,
	driver agent.Driver,
	api github.HostAPI,
	plans plan.Repository,
	archive storage.ArchiveGateway,
	cfg Config,
) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 30 * time.Minute
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if cfg.Mode == "" {
		cfg.Mode = "full"
	}
	return &Orchestrator{
		gov:     gov,
		mon:     mon,
		store:   store,
		led:     led,
		driver:  driver,
		api:     api,
		plans:   plans,
		archive: archive,
		cfg:     cfg,
	}
}

// repoResult is one worker's report back to the scheduler
type repoResult struct {
	repo     string
	outcome  string
	canceled bool
	err      error
}

// Run reviews the given repos. On cancellation it drains running
// workers, writes a resume checkpoint, and returns ErrInterrupted.
// On clean completion it clears the checkpoint and archives the run.
func (o *Orchestrator) Run(ctx context.Context, repos []string) error {
	if err := o.store.Init(o.cfg.RunID); err != nil {
		return err
	}

	queue, skipped := o.filterRecentlyReviewed(repos)
	if len(skipped) > 0 {
		log.Printf("INFO: skipping %d recently reviewed repos", len(skipped))
	}

	// Telemetry refresh runs on its own timer, off every worker's
	// critical path
	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	defer stopRefresh()
	refreshDone := make(chan struct{})
	go o.refreshLoop(refreshCtx, refreshDone)
	defer func() {
		stopRefresh()
		<-refreshDone
	}()

	var (
		results     = make(chan repoResult)
		running     = make(map[string]bool)
		completed   []string
		failures    []string
		interrupted bool
	)

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	// Nilled after the first cancellation so the drain loop blocks on
	// worker results instead of spinning on the closed channel
	ctxDone := ctx.Done()

	for {
		if !interrupted {
			for len(queue) > 0 && o.gov.CanStartNewSession(len(running)) {
				repo := queue[0]
				queue = queue[1:]
				running[repo] = true
				go func(repo string) {
					results <- o.processRepo(ctx, repo)
				}(repo)
			}
		}

		if len(running) == 0 {
			if interrupted {
				if err := o.saveCheckpoint(len(repos), completed, queue); err != nil {
					return err
				}
				return ErrInterrupted
			}
			if len(queue) == 0 {
				break
			}
			if o.gov.Status().CircuitBreakerOpen {
				if err := o.saveCheckpoint(len(repos), completed, queue); err != nil {
					return err
				}
				return ErrBreakerOpen
			}
		}

		select {
		case res := <-results:
			delete(running, res.repo)
			switch {
			case res.canceled:
				queue = append(queue, res.repo)
			case res.err != nil:
				log.Printf("WARN: repo %s finished with outcome %s: %v", res.repo, res.outcome, res.err)
				completed = append(completed, res.repo)
				failures = append(failures, res.repo)
			default:
				completed = append(completed, res.repo)
			}
		case <-ctxDone:
			interrupted = true
			ctxDone = nil
		case <-tick.C:
			// Re-evaluate admission against the latest governor snapshot
		}
	}

	if err := o.store.ClearCheckpoint(); err != nil {
		return err
	}
	o.archiveRun(context.Background())

	if len(failures) > 0 {
		return fmt.Errorf("run %s: %d of %d repos failed", o.cfg.RunID, len(failures), len(repos))
	}
	return nil
}

// refreshLoop keeps the governor's telemetry current
func (o *Orchestrator) refreshLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	o.gov.Refresh(ctx)
	ticker := time.NewTicker(o.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.gov.Refresh(ctx)
		}
	}
}

// processRepo reviews one repo end to end: session, outcome write-through,
// and idempotent host API actions.
func (o *Orchestrator) processRepo(ctx context.Context, repo string) repoResult {
	start := time.Now()
	res := o.superviseSession(ctx, repo)
	if res.canceled {
		return res
	}
	duration := int(time.Since(start).Seconds())

	if res.outcome != OutcomeCompleted {
		if err := o.store.RecordRepoOutcome(repo, res.outcome, duration, 0, 0); err != nil {
			res.err = errors.Join(res.err, err)
		}
		return res
	}

	p, found, err := o.plans.Load(repo)
	if err != nil {
		res.outcome = OutcomeError
		res.err = err
		o.gov.RecordError()
		if recErr := o.store.RecordRepoOutcome(repo, OutcomeError, duration, 0, 0); recErr != nil {
			res.err = errors.Join(res.err, recErr)
		}
		return res
	}

	fixed, skipped := 0, 0
	if found {
		for _, item := range p.Items {
			switch item.Outcome {
			case "fixed":
				fixed++
			case "skipped":
				skipped++
			}
			key := state.ItemKey{Repo: repo, Type: item.Type, Number: item.Number}
			if err := o.store.RecordItemOutcome(key, item.Outcome, item.Notes); err != nil {
				res.err = errors.Join(res.err, err)
			}
		}
	}
	if err := o.store.RecordRepoOutcome(repo, OutcomeCompleted, duration, fixed, skipped); err != nil {
		res.err = errors.Join(res.err, err)
		return res
	}

	if found && len(p.GHActions) > 0 {
		if err := o.led.ExecuteAll(ctx, repo, p.GHActions, o.api); err != nil {
			res.err = errors.Join(res.err, err)
		}
	}
	return res
}

// superviseSession runs one session to a terminal state, driving stall
// recovery and enforcing the hard timeout.
func (o *Orchestrator) superviseSession(ctx context.Context, repo string) repoResult {
	workDir := filepath.Join(o.cfg.WorkRoot, strings.ReplaceAll(repo, "/", "--"))
	sessionID, err := o.driver.Start(ctx, repo, workDir)
	if err != nil {
		o.gov.RecordError()
		return repoResult{repo: repo, outcome: OutcomeError, err: fmt.Errorf("start session: %w", err)}
	}
	o.mon.Register(sessionID, repo)
	defer o.mon.Forget(sessionID)

	deadline := time.NewTimer(o.cfg.SessionTimeout)
	defer deadline.Stop()
	poll := time.NewTicker(o.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			o.stopSession(sessionID, repo)
			return repoResult{repo: repo, canceled: true}

		case <-deadline.C:
			o.stopSession(sessionID, repo)
			o.gov.RecordError()
			return repoResult{repo: repo, outcome: OutcomeTimeout,
				err: fmt.Errorf("session exceeded %s", o.cfg.SessionTimeout)}

		case <-poll.C:
			raw, err := o.mon.ClassifyRaw(sessionID)
			if err != nil {
				o.stopSession(sessionID, repo)
				o.gov.RecordError()
				return repoResult{repo: repo, outcome: OutcomeError, err: err}
			}
			decision, err := o.mon.ApplyHysteresis(sessionID, raw)
			if err != nil {
				o.stopSession(sessionID, repo)
				o.gov.RecordError()
				return repoResult{repo: repo, outcome: OutcomeError, err: err}
			}

			switch decision {
			case monitor.StateStalled:
				if err := o.mon.HandleStalled(sessionID); err != nil {
					// Recovery itself failed; isolate the session
					o.stopSession(sessionID, repo)
					o.gov.RecordError()
					return repoResult{repo: repo, outcome: OutcomeError, err: err}
				}
			case monitor.StateComplete:
				o.stopSession(sessionID, repo)
				return repoResult{repo: repo, outcome: OutcomeCompleted}
			case monitor.StateError:
				o.stopSession(sessionID, repo)
				o.gov.RecordError()
				return repoResult{repo: repo, outcome: OutcomeError,
					err: fmt.Errorf("session %s reported an error state", sessionID)}
			}
		}
	}
}

func (o *Orchestrator) stopSession(sessionID, repo string) {
	if err := o.driver.Stop(sessionID); err != nil {
		log.Printf("WARN: stop session %s (%s): %v", sessionID, repo, err)
	}
}

// filterRecentlyReviewed drops repos reviewed within their skip window
func (o *Orchestrator) filterRecentlyReviewed(repos []string) (pending, skipped []string) {
	for _, repo := range repos {
		days := o.cfg.SkipReviewedDays
		if override, ok := o.cfg.SkipOverrides[repo]; ok {
			days = override
		}
		if days <= 0 {
			pending = append(pending, repo)
			continue
		}
		recent, err := o.store.IsRecentlyReviewed(repo, days)
		if err != nil {
			log.Printf("WARN: recently-reviewed check for %s: %v", repo, err)
		}
		if recent {
			skipped = append(skipped, repo)
			continue
		}
		pending = append(pending, repo)
	}
	return pending, skipped
}

// saveCheckpoint writes the resume file for an interrupted run
func (o *Orchestrator) saveCheckpoint(total int, completed, pending []string) error {
	cp := &state.Checkpoint{
		RunID:          o.cfg.RunID,
		Mode:           o.cfg.Mode,
		ReposTotal:     total,
		ReposCompleted: len(completed),
		ReposPending:   len(pending),
		CompletedRepos: append([]string(nil), completed...),
		PendingRepos:   append([]string(nil), pending...),
	}
	if err := o.store.SaveCheckpoint(cp); err != nil {
		return fmt.Errorf("save resume checkpoint: %w", err)
	}
	log.Printf("INFO: checkpoint written: %d completed, %d pending", len(completed), len(pending))
	return nil
}

// archiveRun uploads the finished run's state and ledger. Best effort;
// a failed upload only warns.
func (o *Orchestrator) archiveRun(ctx context.Context) {
	if o.archive == nil {
		return
	}
	files := make(map[string][]byte)
	for name, path := range map[string]string{
		"state.json":    o.cfg.StatePath,
		"ledger.ndjson": o.cfg.LedgerPath,
	} {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Printf("WARN: archive: read %s: %v", path, err)
			}
			continue
		}
		files[name] = data
	}
	if len(files) == 0 {
		return
	}
	if err := o.archive.ArchiveRun(ctx, o.cfg.RunID, files); err != nil {
		log.Printf("WARN: archive run %s: %v", o.cfg.RunID, err)
	}
}
