// Package governor implements process-wide admission control for review
// sessions. Parallelism shrinks before the run hits a hard rate-limit wall
// and drops to zero under error storms without operator intervention.
package governor

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"
)

// Quota thresholds for the GitHub API budget. Below Critical the fleet
// runs one session at a time; below Low it runs at half the target.
const (
	CriticalQuota = 500
	LowQuota      = 1000
)

// backoffPatterns are scanned (lowercased) in recent session output to
// detect model-provider throttling.
var backoffPatterns = []string{
	"429",
	"rate limit",
	"overloaded",
}

// RateLimitSource reports the remaining host API quota.
// The GitHub gateway implements this.
type RateLimitSource interface {
	QueryRateLimit(ctx context.Context) (remaining int, resetAt int64, err error)
}

// OutputSource exposes recent session output lines for telemetry scans.
// The session monitor implements this.
type OutputSource interface {
	RecentOutput(since time.Time) []string
}

// Config holds the tunable knobs of the Governor
type Config struct {
	Target          int           // Operator-configured parallelism ceiling
	ErrorThreshold  int           // Errors within the window that trip the breaker
	ErrorWindow     time.Duration // Rolling window for the error count
	BackoffLookback time.Duration // How far back Refresh scans output for throttle signals
	BackoffHold     time.Duration // How long a detected model backoff is honored
}

// DefaultConfig returns the governor defaults (target 4, breaker at 5
// errors per minute, 5-minute backoff scan window).
func DefaultConfig() Config {
	return Config{
		Target:          4,
		ErrorThreshold:  5,
		ErrorWindow:     time.Minute,
		BackoffLookback: 5 * time.Minute,
		BackoffHold:     5 * time.Minute,
	}
}

// Governor is the single process-wide admission controller. All mutation
// goes through its lock; CanStartNewSession is a cheap snapshot read.
type Governor struct {
	mu sync.RWMutex

	githubRemaining int
	githubReset     int64

	modelInBackoff    bool
	modelBackoffUntil int64

	targetParallelism    int
	effectiveParallelism int

	circuitBreakerOpen bool
	errorCountWindow   int
	windowStart        int64

	cfg    Config
	rate   RateLimitSource
	output OutputSource
	now    func() time.Time
}

// New creates a Governor. rate and output may be nil; Refresh then skips
// the corresponding telemetry source.
func New(cfg Config, rate RateLimitSource, output OutputSource) *Governor {
	if cfg.Target < 1 {
		cfg.Target = 1
	}
	if cfg.ErrorThreshold < 1 {
		cfg.ErrorThreshold = 5
	}
	if cfg.ErrorWindow <= 0 {
		cfg.ErrorWindow = time.Minute
	}
	if cfg.BackoffLookback <= 0 {
		cfg.BackoffLookback = 5 * time.Minute
	}
	if cfg.BackoffHold <= 0 {
		cfg.BackoffHold = 5 * time.Minute
	}
	g := &Governor{
		targetParallelism: cfg.Target,
		// Until the first Refresh reports real telemetry, assume a full
		// quota so the run can start.
		githubRemaining: LowQuota,
		cfg:             cfg,
		rate:            rate,
		output:          output,
		now:             time.Now,
	}
	g.windowStart = g.now().Unix()
	g.recompute()
	return g
}

// TargetParallelism returns the configured ceiling
func (g *Governor) TargetParallelism() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.targetParallelism
}

// EffectiveParallelism returns the last computed effective limit
func (g *Governor) EffectiveParallelism() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.effectiveParallelism
}

// Refresh gathers rate-limit and model-backoff telemetry and recomputes
// the effective parallelism. Telemetry failures are swallowed: stale
// state is better than halting the fleet over a failed quota query.
func (g *Governor) Refresh(ctx context.Context) {
	var (
		remaining int
		resetAt   int64
		rateOK    bool
	)
	if g.rate != nil {
		r, reset, err := g.rate.QueryRateLimit(ctx)
		if err != nil {
			log.Printf("WARN: governor: rate limit query failed, keeping last telemetry: %v", err)
		} else {
			remaining, resetAt, rateOK = r, reset, true
		}
	}

	throttled := false
	if g.output != nil {
		since := g.now().Add(-g.cfg.BackoffLookback)
		for _, line := range g.output.RecentOutput(since) {
			if matchesBackoff(line) {
				throttled = true
				break
			}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if rateOK {
		g.githubRemaining = remaining
		g.githubReset = resetAt
	}

	now := g.now()
	if throttled {
		g.modelInBackoff = true
		g.modelBackoffUntil = now.Add(g.cfg.BackoffHold).Unix()
	} else if g.modelInBackoff && now.Unix() >= g.modelBackoffUntil {
		g.modelInBackoff = false
		g.modelBackoffUntil = 0
	}

	g.adjustLocked()
}

// AdjustParallelism recomputes effectiveParallelism from current signals.
// Exposed for callers that changed signal state without a full Refresh.
func (g *Governor) AdjustParallelism() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.adjustLocked()
}

// adjustLocked implements the admission policy. Caller holds g.mu.
func (g *Governor) adjustLocked() {
	now := g.now().Unix()

	// Expire old error windows before judging the breaker
	if now-g.windowStart > int64(g.cfg.ErrorWindow.Seconds()) {
		g.errorCountWindow = 0
		g.windowStart = now
	}
	if g.errorCountWindow >= g.cfg.ErrorThreshold {
		if !g.circuitBreakerOpen {
			log.Printf("ERROR: governor: circuit breaker tripped after %d errors in window", g.errorCountWindow)
		}
		g.circuitBreakerOpen = true
	}

	g.recompute()
}

// recompute derives effectiveParallelism as a pure function of the other
// fields. Caller holds g.mu.
func (g *Governor) recompute() {
	switch {
	case g.circuitBreakerOpen:
		g.effectiveParallelism = 0
	case g.modelInBackoff:
		g.effectiveParallelism = 1
	case g.githubRemaining < CriticalQuota:
		g.effectiveParallelism = 1
	case g.githubRemaining < LowQuota:
		half := g.targetParallelism / 2
		if half < 1 {
			half = 1
		}
		g.effectiveParallelism = half
	default:
		g.effectiveParallelism = g.targetParallelism
	}
}

// CanStartNewSession reports whether a new session may start given the
// current number of active sessions. Pure snapshot read; never blocks
// on network or disk.
func (g *Governor) CanStartNewSession(activeCount int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.circuitBreakerOpen || g.modelInBackoff {
		return false
	}
	return activeCount < g.effectiveParallelism
}

// RecordError counts a session that terminated in error state.
// Enough errors inside the window trip the circuit breaker.
func (g *Governor) RecordError() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now().Unix()
	if now-g.windowStart > int64(g.cfg.ErrorWindow.Seconds()) {
		g.errorCountWindow = 0
		g.windowStart = now
	}
	g.errorCountWindow++
	g.adjustLocked()
}

// ResetBreaker closes an open circuit breaker and clears the error
// window. Operator escape hatch; new errors may trip it again.
func (g *Governor) ResetBreaker() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.circuitBreakerOpen = false
	g.errorCountWindow = 0
	g.windowStart = g.now().Unix()
	g.recompute()
}

// matchesBackoff reports whether a session output line carries a
// model-throttling signal
func matchesBackoff(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range backoffPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
