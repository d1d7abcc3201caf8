package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/reviewfleet/internal/app/ledger"
)

func newLedgerCmd() *cobra.Command {
	var (
		repoFilter string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show executed host API actions from the action ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := globalConfig

			led := ledger.New(ledgerPath(cfg))
			entries, err := led.Entries()
			if err != nil {
				return err
			}

			for _, e := range entries {
				if repoFilter != "" && e.Repo != repoFilter {
					continue
				}
				if jsonOutput {
					b, err := json.Marshal(e)
					if err != nil {
						return fmt.Errorf("marshal json: %w", err)
					}
					fmt.Println(string(b))
					continue
				}
				line := fmt.Sprintf("%s  %-7s %-30s %s", e.TS, e.Status, e.Repo, string(e.Action))
				if e.Message != "" {
					line += "  (" + e.Message + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&repoFilter, "repo", "", "Show only entries for this repo (owner/name)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output entries as NDJSON")

	return cmd
}
