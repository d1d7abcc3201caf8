package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/reviewfleet/internal/app/config"
	infraConfig "github.com/YoshitsuguKoike/reviewfleet/internal/infra/config"
	"github.com/YoshitsuguKoike/reviewfleet/internal/infra/fs"
)

// globalConfig holds the loaded configuration for all commands
var globalConfig config.Config

func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviewfleet",
		Short: "Orchestrate concurrent agent review sessions across a repo fleet",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load configuration before any command runs
			// Priority: setting.json > ENV > defaults
			baseDir := ".reviewfleet"
			if home := os.Getenv("REVIEWFLEET_HOME"); home != "" {
				baseDir = home
			}

			cfg, err := infraConfig.LoadSettings(baseDir)
			if err != nil {
				// Continue with defaults if loading fails
				globalConfig = config.Default()
			} else {
				globalConfig = cfg
			}
			fs.SetLogger(fs.NewLeveledLogger(globalConfig.StderrLevel()))
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newGovernorCmd())
	cmd.AddCommand(newLedgerCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}
