package config

import "time"

// Config provides read-only access to application configuration.
// This interface abstracts the configuration source (JSON, ENV, defaults)
// and ensures the app layer doesn't depend on infrastructure details.
type Config interface {
	// Core settings
	Home() string     // Base directory for reviewfleet state (REVIEWFLEET_HOME)
	AgentBin() string // Agent binary path (REVIEWFLEET_AGENT_BIN)
	GHBin() string    // gh CLI binary path (REVIEWFLEET_GH_BIN)

	// Admission control
	TargetParallelism() int         // Operator ceiling on concurrent sessions (REVIEWFLEET_PARALLEL, default 4)
	ErrorThreshold() int            // Errors within the window that trip the circuit breaker
	ErrorWindow() time.Duration     // Rolling error window for the circuit breaker
	RefreshInterval() time.Duration // Governor telemetry refresh period

	// Session lifecycle
	SessionTimeout() time.Duration // Hard per-session timeout
	QuietPeriod() time.Duration    // No-output period before a session is a stall candidate
	PollInterval() time.Duration   // Monitor polling cadence
	HysteresisK() int              // Consecutive observations to confirm a non-terminal state

	// Checkpoint store
	LockTimeout() time.Duration // Flock acquisition timeout, deliberately shorter than SessionTimeout
	SkipReviewedDays() int      // Skip repos reviewed within this many days (0 disables)

	// Run archive (optional, disabled when bucket is empty)
	ArchiveBucket() string
	ArchivePrefix() string
	ArchiveRegion() string

	// Paths and logging
	FleetPath() string   // Fleet definition YAML path
	StderrLevel() string // Stderr log level

	// Metadata
	ConfigSource() string // Source of configuration: "json", "env", or "default"
	SettingPath() string  // Path to setting.json if loaded from file
}

// AppConfig is the concrete implementation of Config interface.
// It holds all configuration values loaded from various sources.
type AppConfig struct {
	home     string
	agentBin string
	ghBin    string

	targetParallelism  int
	errorThreshold     int
	errorWindowSec     int
	refreshIntervalSec int

	sessionTimeoutSec int
	quietPeriodSec    int
	pollIntervalMs    int
	hysteresisK       int

	lockTimeoutSec   int
	skipReviewedDays int

	archiveBucket string
	archivePrefix string
	archiveRegion string

	fleetPath   string
	stderrLevel string

	configSource string
	settingPath  string
}

// Home returns the base directory for reviewfleet state
func (c *AppConfig) Home() string {
	return c.home
}

// AgentBin returns the agent binary path
func (c *AppConfig) AgentBin() string {
	return c.agentBin
}

// GHBin returns the gh CLI binary path
func (c *AppConfig) GHBin() string {
	return c.ghBin
}

// TargetParallelism returns the operator-configured session ceiling
func (c *AppConfig) TargetParallelism() int {
	return c.targetParallelism
}

// ErrorThreshold returns the circuit breaker error threshold
func (c *AppConfig) ErrorThreshold() int {
	return c.errorThreshold
}

// ErrorWindow returns the rolling error window duration
func (c *AppConfig) ErrorWindow() time.Duration {
	return time.Duration(c.errorWindowSec) * time.Second
}

// RefreshInterval returns the governor telemetry refresh period
func (c *AppConfig) RefreshInterval() time.Duration {
	return time.Duration(c.refreshIntervalSec) * time.Second
}

// SessionTimeout returns the hard per-session timeout
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.sessionTimeoutSec) * time.Second
}

// QuietPeriod returns the stall-candidate quiet period
func (c *AppConfig) QuietPeriod() time.Duration {
	return time.Duration(c.quietPeriodSec) * time.Second
}

// PollInterval returns the monitor polling cadence
func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.pollIntervalMs) * time.Millisecond
}

// HysteresisK returns the hysteresis confirmation count
func (c *AppConfig) HysteresisK() int {
	return c.hysteresisK
}

// LockTimeout returns the checkpoint store lock acquisition timeout
func (c *AppConfig) LockTimeout() time.Duration {
	return time.Duration(c.lockTimeoutSec) * time.Second
}

// SkipReviewedDays returns the recently-reviewed skip window in days
func (c *AppConfig) SkipReviewedDays() int {
	return c.skipReviewedDays
}

// ArchiveBucket returns the S3 bucket for run archives (empty disables archiving)
func (c *AppConfig) ArchiveBucket() string {
	return c.archiveBucket
}

// ArchivePrefix returns the S3 key prefix for run archives
func (c *AppConfig) ArchivePrefix() string {
	return c.archivePrefix
}

// ArchiveRegion returns the AWS region for run archives
func (c *AppConfig) ArchiveRegion() string {
	return c.archiveRegion
}

// FleetPath returns the fleet definition YAML path
func (c *AppConfig) FleetPath() string {
	return c.fleetPath
}

// StderrLevel returns the stderr log level
func (c *AppConfig) StderrLevel() string {
	return c.stderrLevel
}

// ConfigSource returns where the configuration was loaded from
func (c *AppConfig) ConfigSource() string {
	return c.configSource
}

// SettingPath returns the path to setting.json if loaded from file
func (c *AppConfig) SettingPath() string {
	return c.settingPath
}

// Params carries resolved configuration values into New.
// The loader in infra/config fills this after merging sources.
type Params struct {
	Home     string
	AgentBin string
	GHBin    string

	TargetParallelism  int
	ErrorThreshold     int
	ErrorWindowSec     int
	RefreshIntervalSec int

	SessionTimeoutSec int
	QuietPeriodSec    int
	PollIntervalMs    int
	HysteresisK       int

	LockTimeoutSec   int
	SkipReviewedDays int

	ArchiveBucket string
	ArchivePrefix string
	ArchiveRegion string

	FleetPath   string
	StderrLevel string

	ConfigSource string
	SettingPath  string
}

// New builds an AppConfig from resolved parameters
func New(p Params) *AppConfig {
	return &AppConfig{
		home:               p.Home,
		agentBin:           p.AgentBin,
		ghBin:              p.GHBin,
		targetParallelism:  p.TargetParallelism,
		errorThreshold:     p.ErrorThreshold,
		errorWindowSec:     p.ErrorWindowSec,
		refreshIntervalSec: p.RefreshIntervalSec,
		sessionTimeoutSec:  p.SessionTimeoutSec,
		quietPeriodSec:     p.QuietPeriodSec,
		pollIntervalMs:     p.PollIntervalMs,
		hysteresisK:        p.HysteresisK,
		lockTimeoutSec:     p.LockTimeoutSec,
		skipReviewedDays:   p.SkipReviewedDays,
		archiveBucket:      p.ArchiveBucket,
		archivePrefix:      p.ArchivePrefix,
		archiveRegion:      p.ArchiveRegion,
		fleetPath:          p.FleetPath,
		stderrLevel:        p.StderrLevel,
		configSource:       p.ConfigSource,
		settingPath:        p.SettingPath,
	}
}

// Default returns the built-in configuration used when no setting.json
// or environment overrides are present.
func Default() *AppConfig {
	return New(DefaultParams())
}

// DefaultParams returns the built-in defaults as a Params value
func DefaultParams() Params {
	return Params{
		Home:               ".reviewfleet",
		AgentBin:           "claude",
		GHBin:              "gh",
		TargetParallelism:  4,
		ErrorThreshold:     5,
		ErrorWindowSec:     60,
		RefreshIntervalSec: 30,
		SessionTimeoutSec:  1800,
		QuietPeriodSec:     90,
		PollIntervalMs:     2000,
		HysteresisK:        2,
		LockTimeoutSec:     10,
		SkipReviewedDays:   0,
		FleetPath:          ".reviewfleet/fleet.yaml",
		StderrLevel:        "info",
		ConfigSource:       "default",
	}
}
