// Package agent provides the driver gateway for autonomous coding-agent
// sessions. A Driver owns the process plumbing; the orchestration core
// only sees session IDs and output text.
package agent

import "context"

// Driver starts, messages, and stops agent sessions. Implementations are
// chosen at construction time; the core never dispatches on a backend name.
type Driver interface {
	// Start spawns a session for repo in workDir and returns its session ID
	Start(ctx context.Context, repo, workDir string) (string, error)

	// Send delivers a text message to a running session
	Send(sessionID, text string) error

	// Interrupt sends a non-destructive interrupt, asking the agent to
	// reconsider its current approach
	Interrupt(sessionID string) error

	// Stop terminates the session and releases its resources
	Stop(sessionID string) error

	// Output returns everything the session has written so far
	Output(sessionID string) (string, error)
}
