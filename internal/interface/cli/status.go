package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/reviewfleet/internal/app/state"
)

// StatusOutput is the machine-readable form of `reviewfleet status`
type StatusOutput struct {
	Ts             string `json:"ts"`
	ReposTotal     int    `json:"repos_total"`
	ReposCompleted int    `json:"repos_completed"`
	ReposFailed    int    `json:"repos_failed"`
	ItemsFixed     int    `json:"items_fixed"`
	ItemsSkipped   int    `json:"items_skipped"`
	CheckpointRun  string `json:"checkpoint_run,omitempty"`
	Ok             bool   `json:"ok"`
	Error          string `json:"error,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current run's review state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := globalConfig
			store := state.NewFileStore(stateDir(cfg), cfg.LockTimeout())

			doc, err := store.Load()
			if err != nil {
				if jsonOutput {
					out := StatusOutput{
						Ts:    time.Now().UTC().Format(time.RFC3339Nano),
						Ok:    false,
						Error: fmt.Sprintf("read state: %v", err),
					}
					b, _ := json.Marshal(out)
					fmt.Println(string(b))
					return err
				}
				return fmt.Errorf("read state: %w", err)
			}

			out := StatusOutput{
				Ts:         time.Now().UTC().Format(time.RFC3339Nano),
				ReposTotal: len(doc.Repos),
				Ok:         true,
			}
			for _, r := range doc.Repos {
				if r.Outcome == "completed" {
					out.ReposCompleted++
				} else {
					out.ReposFailed++
				}
				out.ItemsFixed += r.ItemsFixed
				out.ItemsSkipped += r.ItemsSkipped
			}
			if cp, found, cpErr := store.LoadCheckpoint(); cpErr == nil && found {
				out.CheckpointRun = cp.RunID
			}

			if jsonOutput {
				b, err := json.Marshal(out)
				if err != nil {
					return fmt.Errorf("marshal json: %w", err)
				}
				fmt.Println(string(b))
				return nil
			}

			fmt.Printf("Repos    : %d reviewed (%d completed, %d failed)\n",
				out.ReposTotal, out.ReposCompleted, out.ReposFailed)
			fmt.Printf("Items    : %d fixed, %d skipped\n", out.ItemsFixed, out.ItemsSkipped)
			if out.CheckpointRun != "" {
				fmt.Printf("Resume   : run %s has pending repos\n", out.CheckpointRun)
			}

			names := make([]string, 0, len(doc.Repos))
			for name := range doc.Repos {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				r := doc.Repos[name]
				fmt.Printf("  %-40s %-10s %4ds  fixed=%d skipped=%d\n",
					name, r.Outcome, r.DurationSeconds, r.ItemsFixed, r.ItemsSkipped)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status in JSON format")

	return cmd
}
