package cli

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/reviewfleet/internal/adapter/gateway/agent"
	"github.com/YoshitsuguKoike/reviewfleet/internal/adapter/gateway/github"
	"github.com/YoshitsuguKoike/reviewfleet/internal/adapter/gateway/storage"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/config"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/fleet"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/governor"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/ledger"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/monitor"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/orchestrator"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/plan"
	"github.com/YoshitsuguKoike/reviewfleet/internal/app/state"
)

func newRunCmd() *cobra.Command {
	var (
		fleetPath string
		mode      string
		repos     []string
		parallel  int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Review the fleet (or selected repos) with concurrent agent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := globalConfig

			targets := repos
			runMode := mode
			var skipOverrides map[string]int
			if len(targets) == 0 {
				path := fleetPath
				if path == "" {
					path = cfg.FleetPath()
				}
				f, err := fleet.Load(afero.NewOsFs(), path)
				if err != nil {
					return err
				}
				targets = f.Names()
				if runMode == "" {
					runMode = f.Mode
				}
				skipOverrides = make(map[string]int)
				for _, r := range f.Repos {
					if r.SkipDays > 0 {
						skipOverrides[r.Name] = r.SkipDays
					}
				}
			}
			if len(targets) == 0 {
				return fmt.Errorf("no repos to review")
			}

			ctx, cancel := setupSignalHandler()
			defer cancel()

			runID := newRunID()
			orc, err := buildOrchestrator(ctx, cfg, runID, runMode, parallel, skipOverrides)
			if err != nil {
				return err
			}

			fmt.Printf("Starting run %s: %d repos, mode %s\n", runID, len(targets), runMode)
			return reportRun(orc.Run(ctx, targets))
		},
	}

	cmd.Flags().StringVar(&fleetPath, "fleet", "", "Fleet definition YAML (default: configured fleet path)")
	cmd.Flags().StringVar(&mode, "mode", "", "Review mode (default: fleet definition's mode)")
	cmd.Flags().StringArrayVar(&repos, "repo", nil, "Review only this repo (repeatable, owner/name)")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "Override target parallelism for this run")

	return cmd
}

// buildOrchestrator wires the gateways, governor, monitor, and stores
// for one run.
func buildOrchestrator(ctx context.Context, cfg config.Config, runID, mode string, parallel int, skipOverrides map[string]int) (*orchestrator.Orchestrator, error) {
	for _, dir := range []string{stateDir(cfg), logDir(cfg), planDir(cfg), workRoot(cfg)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	driver := agent.NewClaudeCodeDriver(cfg.AgentBin(), logDir(cfg))
	hostAPI := github.NewGHCLIGateway(cfg.GHBin())

	mon := monitor.New(monitor.Config{
		QuietPeriod: cfg.QuietPeriod(),
		HysteresisK: cfg.HysteresisK(),
	}, driver)

	target := cfg.TargetParallelism()
	if parallel > 0 {
		target = parallel
	}
	gov := governor.New(governor.Config{
		Target:         target,
		ErrorThreshold: cfg.ErrorThreshold(),
		ErrorWindow:    cfg.ErrorWindow(),
	}, hostAPI, mon)

	store := state.NewFileStore(stateDir(cfg), cfg.LockTimeout())
	led := ledger.New(ledgerPath(cfg))
	plans := plan.NewFileRepository(planDir(cfg))

	var archive storage.ArchiveGateway
	if cfg.ArchiveBucket() != "" {
		var err error
		archive, err = storage.NewS3ArchiveGateway(ctx, storage.S3Config{
			Bucket: cfg.ArchiveBucket(),
			Prefix: cfg.ArchivePrefix(),
			Region: cfg.ArchiveRegion(),
		})
		if err != nil {
			return nil, fmt.Errorf("init run archive: %w", err)
		}
	}

	return orchestrator.New(gov, mon, store, led, driver, hostAPI, plans, archive, orchestrator.Config{
		RunID:            runID,
		Mode:             mode,
		PollInterval:     cfg.PollInterval(),
		SessionTimeout:   cfg.SessionTimeout(),
		RefreshInterval:  cfg.RefreshInterval(),
		WorkRoot:         workRoot(cfg),
		StatePath:        stateFilePath(cfg),
		LedgerPath:       ledgerPath(cfg),
		SkipReviewedDays: cfg.SkipReviewedDays(),
		SkipOverrides:    skipOverrides,
	}), nil
}

// reportRun translates run-loop sentinels into operator-facing messages
func reportRun(err error) error {
	switch {
	case err == nil:
		fmt.Println("Run completed")
		return nil
	case errors.Is(err, orchestrator.ErrInterrupted):
		fmt.Println("Run interrupted; resume with: reviewfleet resume")
		return err
	case errors.Is(err, orchestrator.ErrBreakerOpen):
		fmt.Println("Circuit breaker open; inspect recent failures, then resume with: reviewfleet resume")
		return err
	default:
		return err
	}
}

// setupSignalHandler sets up graceful shutdown on SIGINT/SIGTERM
func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		os.Interrupt,    // Ctrl+C (SIGINT)
		syscall.SIGTERM, // kill command
	)

	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "Received signal: %v, initiating graceful shutdown...\n", sig)
		cancel()
	}()

	return ctx, cancel
}

// newRunID generates a ULID run identifier
func newRunID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
