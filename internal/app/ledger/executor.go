package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/YoshitsuguKoike/reviewfleet/internal/adapter/gateway/github"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/plan"
)

// ErrActionsFailed reports that at least one action in an ExecuteAll
// batch failed. All actions are still attempted.
var ErrActionsFailed = errors.New("one or more actions failed")

// ExecuteAll applies a plan's host API actions idempotently: actions
// already ledgered ok are skipped, every other action is attempted, and
// one action's failure never blocks the rest.
func (l *Ledger) ExecuteAll(ctx context.Context, repo string, actions []plan.GHAction, api github.HostAPI) error {
	failed := 0
	for _, a := range actions {
		raw, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal action: %w", err)
		}

		done, err := l.AlreadyExecuted(repo, raw)
		if err != nil {
			return fmt.Errorf("ledger lookup: %w", err)
		}
		if done {
			// Not ledgered: a resumed run may replay the same plan many
			// times and the skip carries no new information
			log.Printf("INFO: action %s on %s (%s) already executed, skipping", a.Op, a.Target, repo)
			continue
		}

		args := actionArgs(a)
		ok, message := api.Execute(ctx, repo, a.Op, a.Target, args)
		status := StatusOK
		if !ok {
			status = StatusFailed
			failed++
			log.Printf("WARN: action %s on %s (%s) failed: %s", a.Op, a.Target, repo, message)
		}
		if err := l.Record(repo, raw, status, message); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d on %s", ErrActionsFailed, failed, len(actions), repo)
	}
	return nil
}

// actionArgs flattens a GHAction into the gateway's argument map
func actionArgs(a plan.GHAction) map[string]string {
	args := make(map[string]string)
	if a.Body != "" {
		args["body"] = a.Body
	}
	if len(a.Labels) > 0 {
		args["labels"] = strings.Join(a.Labels, ",")
	}
	return args
}
