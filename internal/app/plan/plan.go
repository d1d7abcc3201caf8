// Package plan defines the review plan document produced upstream of the
// orchestrator: the items reviewed in a repository and the host API
// actions that should be applied for them.
package plan

import (
	"encoding/json"
	"fmt"
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// CurrentSchemaVersion is the plan document schema this build accepts
const CurrentSchemaVersion = 1

// Operations the host API gateway knows how to execute
const (
	OpComment = "comment"
	OpClose   = "close"
	OpLabel   = "label"
)

// targetRe matches the action target form "issue#<n>" or "pr#<n>"
var targetRe = regexp.MustCompile(`^(issue|pr)#\d+$`)

// Plan is one repository's review plan
type Plan struct {
	SchemaVersion int        `json:"schema_version"`
	Repo          string     `json:"repo"`
	Items         []Item     `json:"items"`
	GHActions     []GHAction `json:"gh_actions"`
	Git           GitPlan    `json:"git"`
}

// Item is a single reviewed issue or pull request
type Item struct {
	Type    string `json:"type"`
	Number  int    `json:"number"`
	Outcome string `json:"outcome"`
	Notes   string `json:"notes"`
}

// GHAction is one mutating host API action. The struct is also the
// canonicalization input for the action ledger, so field meaning must
// stay stable across releases.
type GHAction struct {
	Op     string   `json:"op"`
	Target string   `json:"target"`
	Body   string   `json:"body,omitempty"`
	Labels []string `json:"labels,omitempty"`
}

// GitPlan carries the git-side results of the session. The sync engine
// consumes it; the orchestration core only passes it through.
type GitPlan struct {
	Branch    string `json:"branch,omitempty"`
	CommitSHA string `json:"commit_sha,omitempty"`
	Pushed    bool   `json:"pushed,omitempty"`
}

// Parse decodes and validates a plan document
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	p.normalize()
	return &p, nil
}

// Validate checks schema version, operations, and target forms
func (p *Plan) Validate() error {
	if p.SchemaVersion != CurrentSchemaVersion {
		return fmt.Errorf("unsupported plan schema version %d (want %d)", p.SchemaVersion, CurrentSchemaVersion)
	}
	if p.Repo == "" {
		return fmt.Errorf("plan missing repo")
	}
	for i, a := range p.GHActions {
		switch a.Op {
		case OpComment, OpClose, OpLabel:
		default:
			return fmt.Errorf("gh_actions[%d]: unknown op %q", i, a.Op)
		}
		if !targetRe.MatchString(a.Target) {
			return fmt.Errorf("gh_actions[%d]: malformed target %q", i, a.Target)
		}
		if a.Op == OpLabel && len(a.Labels) == 0 {
			return fmt.Errorf("gh_actions[%d]: label op without labels", i)
		}
	}
	return nil
}

// normalize NFC-normalizes operator-visible text before it is persisted
// or sent to the host API
func (p *Plan) normalize() {
	for i := range p.Items {
		p.Items[i].Notes = norm.NFC.String(p.Items[i].Notes)
	}
	for i := range p.GHActions {
		p.GHActions[i].Body = norm.NFC.String(p.GHActions[i].Body)
	}
}
