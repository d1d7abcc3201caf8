package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/YoshitsuguKoike/reviewfleet/internal/app/config"
)

// RawSettings represents the structure of setting.json.
// All fields are pointers so absent keys fall through to the next source.
type RawSettings struct {
	// Core settings
	Home     *string `json:"home"`
	AgentBin *string `json:"agent_bin"`
	GHBin    *string `json:"gh_bin"`

	// Admission control
	Parallel           *int `json:"parallel"`
	ErrorThreshold     *int `json:"error_threshold"`
	ErrorWindowSec     *int `json:"error_window_sec"`
	RefreshIntervalSec *int `json:"refresh_interval_sec"`

	// Session lifecycle
	SessionTimeoutSec *int `json:"session_timeout_sec"`
	QuietPeriodSec    *int `json:"quiet_period_sec"`
	PollIntervalMs    *int `json:"poll_interval_ms"`
	HysteresisK       *int `json:"hysteresis_k"`

	// Checkpoint store
	LockTimeoutSec   *int `json:"lock_timeout_sec"`
	SkipReviewedDays *int `json:"skip_reviewed_days"`

	// Run archive
	ArchiveBucket *string `json:"archive_bucket"`
	ArchivePrefix *string `json:"archive_prefix"`
	ArchiveRegion *string `json:"archive_region"`

	// Paths and logging
	FleetPath   *string `json:"fleet_path"`
	StderrLevel *string `json:"stderr_level"`
}

// LoadSettings loads configuration for baseDir.
// Priority: setting.json > ENV > defaults.
func LoadSettings(baseDir string) (*config.AppConfig, error) {
	settings := &RawSettings{}
	configSource := "default"
	settingPath := ""

	jsonPath := filepath.Join(baseDir, "setting.json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		if err := json.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", jsonPath, err)
		}
		configSource = "json"
		settingPath = jsonPath
	}

	if applyEnv(settings) && configSource == "default" {
		configSource = "env"
	}

	p := config.DefaultParams()
	p.Home = baseDir
	p.FleetPath = filepath.Join(baseDir, "fleet.yaml")
	applySettings(&p, settings)
	p.ConfigSource = configSource
	p.SettingPath = settingPath

	if p.TargetParallelism < 1 {
		p.TargetParallelism = 1
	}
	return config.New(p), nil
}

// applyEnv fills unset fields from REVIEWFLEET_* environment variables.
// setting.json values win; env only fills what the file left out.
func applyEnv(s *RawSettings) bool {
	applied := false

	envStr := func(key string, dst **string) {
		if *dst != nil {
			return
		}
		if v := os.Getenv(key); v != "" {
			*dst = &v
			applied = true
		}
	}
	envInt := func(key string, dst **int) {
		if *dst != nil {
			return
		}
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = &n
				applied = true
			}
		}
	}

	envStr("REVIEWFLEET_AGENT_BIN", &s.AgentBin)
	envStr("REVIEWFLEET_GH_BIN", &s.GHBin)
	envInt("REVIEWFLEET_PARALLEL", &s.Parallel)
	envInt("REVIEWFLEET_SESSION_TIMEOUT_SEC", &s.SessionTimeoutSec)
	envInt("REVIEWFLEET_QUIET_PERIOD_SEC", &s.QuietPeriodSec)
	envStr("REVIEWFLEET_ARCHIVE_BUCKET", &s.ArchiveBucket)
	envStr("REVIEWFLEET_STDERR_LEVEL", &s.StderrLevel)

	return applied
}

// applySettings overlays non-nil raw settings onto the params
func applySettings(p *config.Params, s *RawSettings) {
	if s.Home != nil {
		p.Home = *s.Home
	}
	if s.AgentBin != nil {
		p.AgentBin = *s.AgentBin
	}
	if s.GHBin != nil {
		p.GHBin = *s.GHBin
	}
	if s.Parallel != nil {
		p.TargetParallelism = *s.Parallel
	}
	if s.ErrorThreshold != nil {
		p.ErrorThreshold = *s.ErrorThreshold
	}
	if s.ErrorWindowSec != nil {
		p.ErrorWindowSec = *s.ErrorWindowSec
	}
	if s.RefreshIntervalSec != nil {
		p.RefreshIntervalSec = *s.RefreshIntervalSec
	}
	if s.SessionTimeoutSec != nil {
		p.SessionTimeoutSec = *s.SessionTimeoutSec
	}
	if s.QuietPeriodSec != nil {
		p.QuietPeriodSec = *s.QuietPeriodSec
	}
	if s.PollIntervalMs != nil {
		p.PollIntervalMs = *s.PollIntervalMs
	}
	if s.HysteresisK != nil {
		p.HysteresisK = *s.HysteresisK
	}
	if s.LockTimeoutSec != nil {
		p.LockTimeoutSec = *s.LockTimeoutSec
	}
	if s.SkipReviewedDays != nil {
		p.SkipReviewedDays = *s.SkipReviewedDays
	}
	if s.ArchiveBucket != nil {
		p.ArchiveBucket = *s.ArchiveBucket
	}
	if s.ArchivePrefix != nil {
		p.ArchivePrefix = *s.ArchivePrefix
	}
	if s.ArchiveRegion != nil {
		p.ArchiveRegion = *s.ArchiveRegion
	}
	if s.FleetPath != nil {
		p.FleetPath = *s.FleetPath
	}
	if s.StderrLevel != nil {
		p.StderrLevel = *s.StderrLevel
	}
}
