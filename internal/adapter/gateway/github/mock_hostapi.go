package github

import (
	"context"
	"fmt"
	"sync"
)

// ExecutedCall records one Execute invocation on the mock
type ExecutedCall struct {
	Repo   string
	Op     string
	Target string
	Args   map[string]string
}

// MockHostAPI is an in-memory HostAPI for tests. It records calls and
// can be scripted to fail specific targets.
type MockHostAPI struct {
	mu sync.Mutex

	Calls       []ExecutedCall
	FailTargets map[string]bool

	Remaining int
	ResetAt   int64
	RateErr   error
}

// NewMockHostAPI creates a mock with a healthy default quota
func NewMockHostAPI() *MockHostAPI {
	return &MockHostAPI{
		FailTargets: make(map[string]bool),
		Remaining:   5000,
	}
}

// Execute records the call; scripted targets fail
func (m *MockHostAPI) Execute(ctx context.Context, repo, op, target string, args map[string]string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, ExecutedCall{Repo: repo, Op: op, Target: target, Args: args})
	if m.FailTargets[target] {
		return false, fmt.Sprintf("host rejected %s on %s", op, target)
	}
	return true, "ok"
}

// QueryRateLimit returns the scripted quota
func (m *MockHostAPI) QueryRateLimit(ctx context.Context) (int, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RateErr != nil {
		return 0, 0, m.RateErr
	}
	return m.Remaining, m.ResetAt, nil
}

// CallCount returns how many Execute calls the mock has seen
func (m *MockHostAPI) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

var _ HostAPI = (*MockHostAPI)(nil)
