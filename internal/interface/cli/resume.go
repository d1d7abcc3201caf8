package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/reviewfleet/internal/app/state"
)

func newResumeCmd() *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume an interrupted run from its checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := globalConfig

			store := state.NewFileStore(stateDir(cfg), cfg.LockTimeout())
			cp, found, err := store.LoadCheckpoint()
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no checkpoint found; nothing to resume")
			}
			if len(cp.PendingRepos) == 0 {
				// The previous run finished everything before stopping
				if err := store.ClearCheckpoint(); err != nil {
					return err
				}
				fmt.Println("Checkpoint had no pending repos; cleared")
				return nil
			}

			ctx, cancel := setupSignalHandler()
			defer cancel()

			orc, err := buildOrchestrator(ctx, cfg, cp.RunID, cp.Mode, parallel, nil)
			if err != nil {
				return err
			}

			fmt.Printf("Resuming run %s: %d of %d repos pending\n",
				cp.RunID, len(cp.PendingRepos), cp.ReposTotal)
			return reportRun(orc.Run(ctx, cp.PendingRepos))
		},
	}

	cmd.Flags().IntVar(&parallel, "parallel", 0, "Override target parallelism for the resumed run")

	return cmd
}
