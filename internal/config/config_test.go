package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name  string
		check func(*Config) bool
	}{
		{"default log level is info", func(c *Config) bool { return c.LogLevel == "info" }},
		{"default log format is json", func(c *Config) bool { return c.LogFormat == "json" }},
		{"default rate limit cycle calls", func(c *Config) bool { return c.RateLimitCycleCalls == 20 }},
		{"default rate limit cycle window", func(c *Config) bool { return c.RateLimitCycleWindow == 60*time.Second }},
		{"default rate limit daily calls", func(c *Config) bool { return c.RateLimitDailyCalls == 100 }},
		{"default reminder batch size", func(c *Config) bool { return c.ReminderBatchSize == 20 }},
		{"default account manager email", func(c *Config) bool { return c.AccountManagerEmail == "accounts@novotechno.example" }},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("default check failed for %s", tt.name)
			}
		})
	}
}

func TestLoadResolvesPathsUnderStateRoot(t *testing.T) {
	t.Setenv("NOVOTECHNO_STATE_ROOT", "/tmp/novotechno-test-state")
	t.Setenv("NOVOTECHNO_CACHE_ROOT", "/tmp/novotechno-test-cache")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.StateDir != filepath.Join("/tmp/novotechno-test-state", "state") {
		t.Errorf("expected StateDir derived from StateRoot, got %q", cfg.StateDir)
	}
	if cfg.ReviewQueueDir != filepath.Join(cfg.StateDir, "review_queue") {
		t.Errorf("expected ReviewQueueDir derived from StateDir, got %q", cfg.ReviewQueueDir)
	}
	if cfg.LedgerPath != filepath.Join("/tmp/novotechno-test-state", "collections.ledger") {
		t.Errorf("expected LedgerPath derived from StateRoot, got %q", cfg.LedgerPath)
	}
	if cfg.KnownFilesPath != filepath.Join("/tmp/novotechno-test-cache", "known_files.json") {
		t.Errorf("expected KnownFilesPath derived from CacheRoot, got %q", cfg.KnownFilesPath)
	}
}

func TestLoadRespectsExplicitPathOverride(t *testing.T) {
	t.Setenv("NOVOTECHNO_LEDGER_PATH", "/tmp/custom.ledger")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LedgerPath != "/tmp/custom.ledger" {
		t.Errorf("expected explicit ledger path override, got %q", cfg.LedgerPath)
	}
}
