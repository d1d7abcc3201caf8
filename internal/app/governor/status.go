package governor

// Status is a read-only snapshot of governor state for observability
type Status struct {
	GithubRemaining      int   `json:"github_remaining"`
	GithubReset          int64 `json:"github_reset"`
	ModelInBackoff       bool  `json:"model_in_backoff"`
	ModelBackoffUntil    int64 `json:"model_backoff_until"`
	EffectiveParallelism int   `json:"effective_parallelism"`
	TargetParallelism    int   `json:"target_parallelism"`
	CircuitBreakerOpen   bool  `json:"circuit_breaker_open"`
	ErrorCount           int   `json:"error_count"`
}

// Status returns a consistent snapshot of the governor's state
func (g *Governor) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Status{
		GithubRemaining:      g.githubRemaining,
		GithubReset:          g.githubReset,
		ModelInBackoff:       g.modelInBackoff,
		ModelBackoffUntil:    g.modelBackoffUntil,
		EffectiveParallelism: g.effectiveParallelism,
		TargetParallelism:    g.targetParallelism,
		CircuitBreakerOpen:   g.circuitBreakerOpen,
		ErrorCount:           g.errorCountWindow,
	}
}
