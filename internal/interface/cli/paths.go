package cli

import (
	"path/filepath"

	"github.com/YoshitsuguKoike/reviewfleet/internal/app/config"
)

// Directory layout under the reviewfleet home:
//
//	<home>/setting.json      configuration
//	<home>/fleet.yaml        fleet definition (default FleetPath)
//	<home>/plans/            per-repo review plans written by sessions
//	<home>/work/             per-repo working copies
//	<home>/var/state/        state.json, state.lock, checkpoint.json
//	<home>/var/ledger.ndjson action ledger
//	<home>/var/logs/         session output logs

func stateDir(cfg config.Config) string {
	return filepath.Join(cfg.Home(), "var", "state")
}

func stateFilePath(cfg config.Config) string {
	return filepath.Join(stateDir(cfg), "state.json")
}

func ledgerPath(cfg config.Config) string {
	return filepath.Join(cfg.Home(), "var", "ledger.ndjson")
}

func logDir(cfg config.Config) string {
	return filepath.Join(cfg.Home(), "var", "logs")
}

func planDir(cfg config.Config) string {
	return filepath.Join(cfg.Home(), "plans")
}

func workRoot(cfg config.Config) string {
	return filepath.Join(cfg.Home(), "work")
}
