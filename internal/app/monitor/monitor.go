// Package monitor classifies noisy session output streams into stable
// lifecycle states and drives stall recovery. Raw observations pass
// through hysteresis so a single odd poll never flips the confirmed state.
package monitor

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/YoshitsuguKoike/reviewfleet/internal/adapter/gateway/agent"
)

// resultMarker is the structured completion marker emitted by the claude
// CLI in stream-json mode.
const resultMarker = `"type":"result"`

// errorPatterns identify a session that has failed rather than finished.
// Matched case-insensitively against the output tail.
var errorPatterns = []string{
	`"is_error":true`,
	"fatal error:",
	"panic:",
	"execution failed",
	"command not found",
}

// thinkingIndicators mark output that is progress but not generation
var thinkingIndicators = []string{
	`"type":"thinking"`,
	"thinking...",
	"analyzing",
	"planning",
}

// compactCommand is sent to a session on deep stalls to shrink its
// working context.
const compactCommand = "/compact"

// maxRecentLines bounds the shared output log used for telemetry scans
const maxRecentLines = 512

// Config holds the monitor's tunable parameters
type Config struct {
	QuietPeriod time.Duration // No-output period before a stall candidate
	HysteresisK int           // Consecutive matching observations to confirm
	HistorySize int           // Bounded raw-observation ring per session
}

// DefaultConfig returns the monitor defaults (90s quiet period, k=2)
func DefaultConfig() Config {
	return Config{
		QuietPeriod: 90 * time.Second,
		HysteresisK: 2,
		HistorySize: 8,
	}
}

// record is the per-session state owned by the monitor. Destroyed once
// the orchestrator acknowledges a terminal state via Forget.
type record struct {
	sessionID string
	repo      string

	// history holds raw observations, most recent first, bounded
	history   []State
	confirmed State

	stallCount int
	// outputSinceStall marks genuine session activity after a recovery
	// action; only that resets the escalation ladder. A quiet-but-tolerable
	// poll right after recovery restarted the quiet period is not progress.
	outputSinceStall bool

	lastOutputLen int
	lastChange    time.Time
	started       time.Time
}

type logLine struct {
	ts   time.Time
	text string
}

// Monitor tracks all active sessions. Safe for concurrent use by the
// orchestrator's workers and the governor's refresh loop.
type Monitor struct {
	mu       sync.Mutex
	sessions map[string]*record
	recent   []logLine

	driver agent.Driver
	cfg    Config
	now    func() time.Time
}

// New creates a Monitor on top of a Driver
func New(cfg Config, driver agent.Driver) *Monitor {
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = 90 * time.Second
	}
	if cfg.HysteresisK < 2 {
		cfg.HysteresisK = 2
	}
	if cfg.HistorySize < cfg.HysteresisK {
		cfg.HistorySize = cfg.HysteresisK * 4
	}
	return &Monitor{
		sessions: make(map[string]*record),
		driver:   driver,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Register begins tracking a session. Must be called before any
// classification of that session.
func (m *Monitor) Register(sessionID, repo string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.sessions[sessionID] = &record{
		sessionID:  sessionID,
		repo:       repo,
		confirmed:  StateIdle,
		lastChange: now,
		started:    now,
	}
}

// Forget destroys a session's record. Called by the orchestrator after
// it has written the terminal outcome through the checkpoint store.
func (m *Monitor) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// ConfirmedState returns the session's current confirmed state
func (m *Monitor) ConfirmedState(sessionID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return "", fmt.Errorf("unknown session: %s", sessionID)
	}
	return rec.confirmed, nil
}

// StallCount returns the session's consecutive stall count
func (m *Monitor) StallCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return 0
	}
	return rec.stallCount
}

// ClassifyRaw inspects the session's live output and returns a raw state
// observation. Completion and error detection run first and short-circuit.
func (m *Monitor) ClassifyRaw(sessionID string) (State, error) {
	out, err := m.driver.Output(sessionID)
	if err != nil {
		return StateError, fmt.Errorf("read session output: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return "", fmt.Errorf("unknown session: %s", sessionID)
	}

	now := m.now()
	delta := ""
	if len(out) > rec.lastOutputLen {
		delta = out[rec.lastOutputLen:]
		rec.lastOutputLen = len(out)
		rec.lastChange = now
		rec.outputSinceStall = true
		m.appendRecentLocked(now, delta)
	}

	tail := outputTail(out, 4096)
	lower := strings.ToLower(tail)

	// Terminal detection wins over everything else
	if strings.Contains(tail, resultMarker) {
		return StateComplete, nil
	}
	for _, p := range errorPatterns {
		if strings.Contains(lower, p) {
			return StateError, nil
		}
	}

	if delta != "" {
		lowerDelta := strings.ToLower(delta)
		for _, ind := range thinkingIndicators {
			if strings.Contains(lowerDelta, ind) {
				return StateThinking, nil
			}
		}
		return StateGenerating, nil
	}

	// A session that has been quiet too long is a stall candidate even if
	// it never produced output at all
	if now.Sub(rec.lastChange) >= m.cfg.QuietPeriod {
		return StateStalled, nil
	}
	if rec.lastOutputLen == 0 {
		return StateIdle, nil
	}

	// Quiet but within tolerance: hold the last confirmed state
	return rec.confirmed, nil
}

// ApplyHysteresis folds a raw observation into the session's history and
// returns the resulting decision state. Terminal states confirm on a
// single observation; everything else needs k consecutive matches.
// A confirmed stall is returned to the caller to drive recovery but is
// never stored as the confirmed state.
func (m *Monitor) ApplyHysteresis(sessionID string, raw State) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return "", fmt.Errorf("unknown session: %s", sessionID)
	}

	// Terminal states are absorbing; nothing moves a finished session
	if rec.confirmed.IsTerminal() {
		return rec.confirmed, nil
	}

	rec.push(raw, m.cfg.HistorySize)

	// Only genuine activity counts as recovery from a stall; the held
	// confirmed state right after a recovery action does not
	if raw != StateStalled && rec.stallCount > 0 && rec.outputSinceStall {
		rec.stallCount = 0
	}

	if raw.IsTerminal() {
		rec.confirmed = raw
		return raw, nil
	}

	if !rec.consecutive(raw, m.cfg.HysteresisK) {
		return rec.confirmed, nil
	}

	if raw == StateStalled {
		// Recovery decision for the caller; confirmed state stays put
		return StateStalled, nil
	}

	if canTransition(rec.confirmed, raw) {
		rec.confirmed = raw
	}
	return rec.confirmed, nil
}

// HandleStalled runs one step of the stall-recovery escalation ladder:
// soft interrupts for the first two stalls, then context compaction.
// Driver failures propagate so the orchestrator can isolate the session.
// Each rung restarts the quiet period so the recovery action gets a full
// quiet period to take effect before the next stall detection; without
// that, a fast poll loop would climb the whole ladder in consecutive
// ticks.
func (m *Monitor) HandleStalled(sessionID string) error {
	m.mu.Lock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("unknown session: %s", sessionID)
	}
	rec.stallCount++
	rec.lastChange = m.now()
	rec.outputSinceStall = false
	count := rec.stallCount
	repo := rec.repo
	m.mu.Unlock()

	if count <= 2 {
		log.Printf("WARN: session %s (%s) stalled (count=%d), sending interrupt", sessionID, repo, count)
		if err := m.driver.Interrupt(sessionID); err != nil {
			return fmt.Errorf("stall interrupt failed: %w", err)
		}
		return nil
	}

	log.Printf("WARN: session %s (%s) stalled (count=%d), requesting context compaction", sessionID, repo, count)
	if err := m.driver.Send(sessionID, compactCommand); err != nil {
		return fmt.Errorf("stall compaction failed: %w", err)
	}
	return nil
}

// RecentOutput returns output lines observed since the given time.
// Used by the governor's telemetry scan.
func (m *Monitor) RecentOutput(since time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lines []string
	for _, l := range m.recent {
		if l.ts.After(since) || l.ts.Equal(since) {
			lines = append(lines, l.text)
		}
	}
	return lines
}

// appendRecentLocked adds new output lines to the bounded shared log.
// Caller holds m.mu.
func (m *Monitor) appendRecentLocked(ts time.Time, chunk string) {
	for _, line := range strings.Split(chunk, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m.recent = append(m.recent, logLine{ts: ts, text: line})
	}
	if over := len(m.recent) - maxRecentLines; over > 0 {
		m.recent = m.recent[over:]
	}
}

// push prepends a raw observation, trimming the ring to size
func (r *record) push(s State, size int) {
	r.history = append([]State{s}, r.history...)
	if len(r.history) > size {
		r.history = r.history[:size]
	}
}

// consecutive reports whether the k most recent observations all equal s
func (r *record) consecutive(s State, k int) bool {
	if len(r.history) < k {
		return false
	}
	for i := 0; i < k; i++ {
		if r.history[i] != s {
			return false
		}
	}
	return true
}

// outputTail returns the last n bytes of s
func outputTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
