package cli

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

//go:embed templates/setting.json.tmpl
var settingTmpl string

//go:embed templates/fleet.yaml.tmpl
var fleetTmpl string

func newInitCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a reviewfleet home directory",
		RunE: func(c *cobra.Command, _ []string) error {
			if dir == "" {
				dir = "."
			}

			home := filepath.Join(dir, ".reviewfleet")
			dirs := []string{
				filepath.Join(home, "plans"),
				filepath.Join(home, "work"),
				filepath.Join(home, "var", "state"),
				filepath.Join(home, "var", "logs"),
			}
			for _, d := range dirs {
				if err := os.MkdirAll(d, 0o755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", d, err)
				}
			}

			// Keep empty directories trackable in VCS
			keepFiles := []string{
				filepath.Join(home, "plans", ".gitkeep"),
				filepath.Join(home, "var", ".keep"),
			}
			for _, f := range keepFiles {
				if err := writeIfNotExists(f, []byte("")); err != nil {
					return fmt.Errorf("failed to create %s: %w", f, err)
				}
			}

			if err := writeIfNotExists(filepath.Join(home, "setting.json"), []byte(settingTmpl)); err != nil {
				return fmt.Errorf("failed to write setting.json: %w", err)
			}
			if err := writeIfNotExists(filepath.Join(home, "fleet.yaml"), []byte(fleetTmpl)); err != nil {
				return fmt.Errorf("failed to write fleet.yaml: %w", err)
			}

			fmt.Printf("Initialized reviewfleet home at %s\n", home)
			fmt.Println("Next: add repos to fleet.yaml, then run: reviewfleet run")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory to initialize (default: current directory)")
	return cmd
}

// writeIfNotExists writes data to path only when the file is absent.
// Re-running init never clobbers operator edits.
func writeIfNotExists(path string, data []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
