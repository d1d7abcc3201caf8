package agent

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
)

// ClaudeCodeDriver runs one claude CLI process per session. Each session's
// combined output is captured to <logDir>/<sessionID>.log so the monitor
// can classify it and the governor can scan it after the process is gone.
type ClaudeCodeDriver struct {
	bin    string
	logDir string

	mu       sync.Mutex
	sessions map[string]*cliSession
}

type cliSession struct {
	repo    string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	logPath string
	started time.Time
}

// NewClaudeCodeDriver creates a driver that spawns bin (normally "claude")
// and captures session output under logDir.
func NewClaudeCodeDriver(bin, logDir string) *ClaudeCodeDriver {
	if bin == "" {
		bin = "claude"
	}
	return &ClaudeCodeDriver{
		bin:      bin,
		logDir:   logDir,
		sessions: make(map[string]*cliSession),
	}
}

// Start spawns a claude session for repo in workDir
func (d *ClaudeCodeDriver) Start(ctx context.Context, repo, workDir string) (string, error) {
	if err := os.MkdirAll(d.logDir, 0o755); err != nil {
		return "", fmt.Errorf("create session log directory: %w", err)
	}

	sessionID := newSessionID()
	logPath := filepath.Join(d.logDir, sessionID+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("create session log: %w", err)
	}

	prompt := fmt.Sprintf("Review the repository %s. Fix the issues listed in the review plan and report each item's outcome.", repo)
	cmd := exec.CommandContext(ctx, d.bin,
		"-p", "--output-format", "stream-json", "--verbose",
		"--dangerously-skip-permissions",
		prompt,
	)
	cmd.Dir = workDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	stdin, err := cmd.StdinPipe()
	if err != nil {
		logFile.Close()
		return "", fmt.Errorf("open session stdin: %w", err)
	}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return "", fmt.Errorf("start claude for %s: %w", repo, err)
	}

	// The file handle is owned by the child's stdout from here; close our
	// copy once the process exits.
	go func() {
		cmd.Wait()
		logFile.Close()
	}()

	d.mu.Lock()
	d.sessions[sessionID] = &cliSession{
		repo:    repo,
		cmd:     cmd,
		stdin:   stdin,
		logPath: logPath,
		started: time.Now(),
	}
	d.mu.Unlock()

	return sessionID, nil
}

// Send writes a line of text to the session's stdin
func (d *ClaudeCodeDriver) Send(sessionID, text string) error {
	s, err := d.lookup(sessionID)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(s.stdin, text+"\n"); err != nil {
		return fmt.Errorf("send to session %s: %w", sessionID, err)
	}
	return nil
}

// Interrupt delivers SIGINT, the non-destructive "reconsider" nudge
func (d *ClaudeCodeDriver) Interrupt(sessionID string) error {
	s, err := d.lookup(sessionID)
	if err != nil {
		return err
	}
	if s.cmd.Process == nil {
		return fmt.Errorf("session %s has no process", sessionID)
	}
	if err := s.cmd.Process.Signal(syscall.SIGINT); err != nil {
		return fmt.Errorf("interrupt session %s: %w", sessionID, err)
	}
	return nil
}

// Stop kills the session process and forgets it. The output log survives
// for post-mortem scans.
func (d *ClaudeCodeDriver) Stop(sessionID string) error {
	d.mu.Lock()
	s, ok := d.sessions[sessionID]
	if ok {
		delete(d.sessions, sessionID)
	}
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown session: %s", sessionID)
	}

	s.stdin.Close()
	if s.cmd.Process != nil {
		if err := s.cmd.Process.Kill(); err != nil && !isAlreadyFinished(err) {
			return fmt.Errorf("stop session %s: %w", sessionID, err)
		}
	}
	return nil
}

// Output reads the full captured output of the session so far
func (d *ClaudeCodeDriver) Output(sessionID string) (string, error) {
	s, err := d.lookup(sessionID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.logPath)
	if err != nil {
		return "", fmt.Errorf("read session log %s: %w", s.logPath, err)
	}
	return string(data), nil
}

func (d *ClaudeCodeDriver) lookup(sessionID string) (*cliSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", sessionID)
	}
	return s, nil
}

// newSessionID generates a ULID session identifier
func newSessionID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func isAlreadyFinished(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
