// Package github provides the host API gateway. The orchestration core
// invokes it for mutating actions and quota telemetry; it never builds
// API requests itself.
package github

import "context"

// HostAPI is the capability the core requires of the source host
type HostAPI interface {
	// Execute performs one mutating action against repo. ok reports
	// whether the mutation took effect; message carries the host's
	// response either way.
	Execute(ctx context.Context, repo, op, target string, args map[string]string) (ok bool, message string)

	// QueryRateLimit returns the remaining API quota and its reset time
	QueryRateLimit(ctx context.Context) (remaining int, resetAt int64, err error)
}
