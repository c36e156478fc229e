// Package config loads the fleet's on-disk layout, rate-limit defaults,
// OAuth settings, and cadence intervals from the environment, mirroring
// the teacher's single-struct, tag-driven configuration style.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every setting the collections fleet's agents need, loaded
// once per process from environment variables.
type Config struct {
	// On-disk layout. Defaults follow the per-user state root; every path
	// is independently overridable.
	CacheRoot string `env:"NOVOTECHNO_CACHE_ROOT"`
	StateRoot string `env:"NOVOTECHNO_STATE_ROOT"`

	StateDir        string `env:"NOVOTECHNO_STATE_DIR"`
	QueuesDir       string `env:"NOVOTECHNO_QUEUES_DIR"`
	KnownFilesPath  string `env:"NOVOTECHNO_KNOWN_FILES"`
	HeartbeatsDir   string `env:"NOVOTECHNO_HEARTBEATS_DIR"`
	LedgerPath      string `env:"NOVOTECHNO_LEDGER_PATH"`
	ReviewQueueDir  string `env:"NOVOTECHNO_REVIEW_QUEUE_DIR"`
	ManualDir       string `env:"NOVOTECHNO_MANUAL_DIR"`
	SecretsDir      string `env:"NOVOTECHNO_SECRETS_DIR"`
	InstallSaltPath string `env:"NOVOTECHNO_INSTALL_SALT_PATH"`
	DashboardPath   string `env:"NOVOTECHNO_DASHBOARD_PATH"`

	// Logging.
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Rate limiting. Defaults match the documented 20 calls per 60-second
	// cycle, 100 calls per day.
	RateLimitCycleCalls  int           `env:"NOVOTECHNO_RATE_CYCLE_CALLS" envDefault:"20"`
	RateLimitCycleWindow time.Duration `env:"NOVOTECHNO_RATE_CYCLE_WINDOW" envDefault:"60s"`
	RateLimitDailyCalls  int           `env:"NOVOTECHNO_RATE_DAILY_CALLS" envDefault:"100"`

	// Cadence.
	ReminderBatchSize     int           `env:"NOVOTECHNO_REMINDER_BATCH_SIZE" envDefault:"20"`
	ReminderInterval      time.Duration `env:"NOVOTECHNO_REMINDER_INTERVAL" envDefault:"1h"`
	SupervisorHealthEvery time.Duration `env:"NOVOTECHNO_SUPERVISOR_HEALTH_INTERVAL" envDefault:"5m"`
	SupervisorReconEvery  time.Duration `env:"NOVOTECHNO_SUPERVISOR_RECONCILE_INTERVAL" envDefault:"30m"`

	// OAuth.
	OAuthClientID  string   `env:"NOVOTECHNO_OAUTH_CLIENT_ID"`
	OAuthTenantID  string   `env:"NOVOTECHNO_OAUTH_TENANT_ID"`
	OAuthScopes    []string `env:"NOVOTECHNO_OAUTH_SCOPES" envSeparator:" "`
	OAuthAccountID string   `env:"NOVOTECHNO_OAUTH_ACCOUNT_ID"`

	// Operator contacts.
	AccountManagerEmail string `env:"NOVOTECHNO_ACCOUNT_MANAGER_EMAIL" envDefault:"accounts@novotechno.example"`
	EmailerRecipient    string `env:"NOVOTECHNO_EMAILER_RECIPIENT" envDefault:"billing@novotechno.example"`
}

// Load reads configuration from the environment and resolves every
// on-disk path default relative to the user's home directory.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.applyPathDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyPathDefaults() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("config: resolving home directory: %w", err)
	}

	if c.CacheRoot == "" {
		c.CacheRoot = filepath.Join(home, ".cache", "novotechno-collections")
	}
	if c.StateRoot == "" {
		c.StateRoot = filepath.Join(home, ".local", "share", "novotechno-collections")
	}
	if c.StateDir == "" {
		c.StateDir = filepath.Join(c.StateRoot, "state")
	}
	if c.QueuesDir == "" {
		c.QueuesDir = filepath.Join(c.CacheRoot, "queues")
	}
	if c.KnownFilesPath == "" {
		c.KnownFilesPath = filepath.Join(c.CacheRoot, "known_files.json")
	}
	if c.HeartbeatsDir == "" {
		c.HeartbeatsDir = filepath.Join(c.CacheRoot, "heartbeats")
	}
	if c.LedgerPath == "" {
		c.LedgerPath = filepath.Join(c.StateRoot, "collections.ledger")
	}
	if c.ReviewQueueDir == "" {
		c.ReviewQueueDir = filepath.Join(c.StateDir, "review_queue")
	}
	if c.ManualDir == "" {
		c.ManualDir = filepath.Join(c.StateDir, "manual")
	}
	if c.SecretsDir == "" {
		c.SecretsDir = filepath.Join(c.CacheRoot, "secrets")
	}
	if c.InstallSaltPath == "" {
		c.InstallSaltPath = filepath.Join(c.CacheRoot, "install.salt")
	}
	if c.DashboardPath == "" {
		c.DashboardPath = filepath.Join(c.CacheRoot, "dashboard.html")
	}
	return nil
}
