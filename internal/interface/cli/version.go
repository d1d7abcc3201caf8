package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/reviewfleet/internal/buildinfo"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the reviewfleet version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("reviewfleet %s\n", buildinfo.GetVersion())
			return nil
		},
	}
}
