package github

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// GHCLIGateway implements HostAPI by shelling out to the gh CLI.
// This reuses the operator's existing gh authentication instead of
// carrying a token store of its own.
type GHCLIGateway struct {
	bin     string
	timeout time.Duration
}

// NewGHCLIGateway creates a gateway around bin (normally "gh")
func NewGHCLIGateway(bin string) *GHCLIGateway {
	if bin == "" {
		bin = "gh"
	}
	return &GHCLIGateway{bin: bin, timeout: 60 * time.Second}
}

// Execute runs one mutating gh command. Unknown ops and malformed
// targets report failure rather than guessing.
func (g *GHCLIGateway) Execute(ctx context.Context, repo, op, target string, args map[string]string) (bool, string) {
	kind, number, err := splitTarget(target)
	if err != nil {
		return false, err.Error()
	}

	sub := "issue"
	if kind == "pr" {
		sub = "pr"
	}

	var cmdArgs []string
	switch op {
	case "comment":
		cmdArgs = []string{sub, "comment", number, "--repo", repo, "--body", args["body"]}
	case "close":
		cmdArgs = []string{sub, "close", number, "--repo", repo}
	case "label":
		cmdArgs = []string{sub, "edit", number, "--repo", repo, "--add-label", args["labels"]}
	default:
		return false, fmt.Sprintf("unknown op: %s", op)
	}

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := exec.CommandContext(cctx, g.bin, cmdArgs...).CombinedOutput()
	msg := strings.TrimSpace(string(out))
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		return false, msg
	}
	return true, msg
}

// rateLimitResponse is the fragment of `gh api rate_limit` we consume
type rateLimitResponse struct {
	Resources struct {
		Core struct {
			Remaining int   `json:"remaining"`
			Reset     int64 `json:"reset"`
		} `json:"core"`
	} `json:"resources"`
}

// QueryRateLimit asks gh for the remaining core API quota
func (g *GHCLIGateway) QueryRateLimit(ctx context.Context) (int, int64, error) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := exec.CommandContext(cctx, g.bin, "api", "rate_limit").Output()
	if err != nil {
		return 0, 0, fmt.Errorf("gh rate_limit query: %w", err)
	}
	var resp rateLimitResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return 0, 0, fmt.Errorf("parse rate_limit response: %w", err)
	}
	return resp.Resources.Core.Remaining, resp.Resources.Core.Reset, nil
}

// splitTarget decodes "issue#12" / "pr#3" into kind and number
func splitTarget(target string) (kind, number string, err error) {
	kind, number, ok := strings.Cut(target, "#")
	if !ok || (kind != "issue" && kind != "pr") {
		return "", "", fmt.Errorf("malformed target: %q", target)
	}
	if _, convErr := strconv.Atoi(number); convErr != nil {
		return "", "", fmt.Errorf("malformed target number: %q", target)
	}
	return kind, number, nil
}

var _ HostAPI = (*GHCLIGateway)(nil)
