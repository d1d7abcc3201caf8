package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/reviewfleet/internal/adapter/gateway/github"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/governor"
)

func newGovernorCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "governor",
		Short: "Show what parallelism the governor would grant right now",
		Long: "Queries live host API telemetry and reports the effective parallelism " +
			"a new run would start with. Circuit breaker and model backoff state are " +
			"per-process and always start closed here.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := globalConfig

			hostAPI := github.NewGHCLIGateway(cfg.GHBin())
			gov := governor.New(governor.Config{
				Target:         cfg.TargetParallelism(),
				ErrorThreshold: cfg.ErrorThreshold(),
				ErrorWindow:    cfg.ErrorWindow(),
			}, hostAPI, nil)

			gov.Refresh(cmd.Context())
			st := gov.Status()

			if jsonOutput {
				b, err := json.Marshal(st)
				if err != nil {
					return fmt.Errorf("marshal json: %w", err)
				}
				fmt.Println(string(b))
				return nil
			}

			fmt.Printf("Target parallelism    : %d\n", st.TargetParallelism)
			fmt.Printf("Effective parallelism : %d\n", st.EffectiveParallelism)
			fmt.Printf("GitHub API remaining  : %d\n", st.GithubRemaining)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output governor status in JSON format")

	return cmd
}
