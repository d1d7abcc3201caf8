package agent

import (
	"context"
	"fmt"
	"sync"
)

// MockDriver is an in-memory Driver for tests. Output per session is set
// directly by the test; all control calls are recorded.
type MockDriver struct {
	mu sync.Mutex

	nextID     int
	outputs    map[string]string
	repos      map[string]string
	sends      map[string][]string
	interrupts map[string]int
	stopped    map[string]bool

	// FailControl makes Send/Interrupt/Stop return an error, simulating
	// an unreachable driver during stall escalation
	FailControl bool
}

// NewMockDriver creates an empty mock driver
func NewMockDriver() *MockDriver {
	return &MockDriver{
		outputs:    make(map[string]string),
		repos:      make(map[string]string),
		sends:      make(map[string][]string),
		interrupts: make(map[string]int),
		stopped:    make(map[string]bool),
	}
}

// Start registers a new mock session
func (d *MockDriver) Start(ctx context.Context, repo, workDir string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := fmt.Sprintf("mock-%d", d.nextID)
	d.outputs[id] = ""
	d.repos[id] = repo
	return id, nil
}

// Send records the message
func (d *MockDriver) Send(sessionID, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailControl {
		return fmt.Errorf("driver unreachable")
	}
	d.sends[sessionID] = append(d.sends[sessionID], text)
	return nil
}

// Interrupt records the interrupt
func (d *MockDriver) Interrupt(sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailControl {
		return fmt.Errorf("driver unreachable")
	}
	d.interrupts[sessionID]++
	return nil
}

// Stop marks the session stopped
func (d *MockDriver) Stop(sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailControl {
		return fmt.Errorf("driver unreachable")
	}
	d.stopped[sessionID] = true
	return nil
}

// Output returns the scripted output for the session
func (d *MockDriver) Output(sessionID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out, ok := d.outputs[sessionID]
	if !ok {
		return "", fmt.Errorf("unknown session: %s", sessionID)
	}
	return out, nil
}

// SetOutput replaces the session's scripted output
func (d *MockDriver) SetOutput(sessionID, output string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputs[sessionID] = output
}

// AppendOutput appends to the session's scripted output
func (d *MockDriver) AppendOutput(sessionID, output string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.outputs[sessionID] += output
}

// Interrupts returns how many interrupts the session received
func (d *MockDriver) Interrupts(sessionID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interrupts[sessionID]
}

// Sends returns the messages sent to the session
func (d *MockDriver) Sends(sessionID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sends[sessionID]...)
}

// Stopped reports whether Stop was called for the session
func (d *MockDriver) Stopped(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped[sessionID]
}

// Ensure MockDriver satisfies Driver
var _ Driver = (*MockDriver)(nil)
