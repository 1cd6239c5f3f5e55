package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.Engine.DefaultBudgetSec != 60 || cfg.Engine.MinBudgetSec != 5 || cfg.Engine.MaxBudgetSec != 300 {
		t.Fatalf("budget defaults = %+v", cfg.Engine)
	}
	if cfg.Engine.MaxAdaptationSec != 30 || cfg.Engine.MaxDateHorizonDays != 30 {
		t.Fatalf("engine defaults = %+v", cfg.Engine)
	}
	if cfg.Notify.MaxAttempts != 10 {
		t.Fatalf("notify defaults = %+v", cfg.Notify)
	}
	if cfg.Engine.DefaultBudget() != 60*time.Second {
		t.Fatalf("default budget = %v", cfg.Engine.DefaultBudget())
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("addr: \":9000\"\nengine:\n  defaultBudgetSec: 90\n  maxDateHorizonDays: 14\nnotify:\n  maxAttempts: 3\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.Engine.DefaultBudgetSec != 90 || cfg.Engine.MaxDateHorizonDays != 14 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Notify.MaxAttempts != 3 {
		t.Fatalf("notify = %+v", cfg.Notify)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Engine.MaxBudgetSec != 300 {
		t.Fatalf("maxBudgetSec = %d", cfg.Engine.MaxBudgetSec)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://test")
	t.Setenv("STOP_FEED_DIR", "/var/feeds")
	t.Setenv("ENGINE_WORKERS", "3")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.DatabaseURL != "postgres://test" || cfg.FeedDir != "/var/feeds" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Engine.Workers != 3 {
		t.Fatalf("workers = %d", cfg.Engine.Workers)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("addr: [unclosed"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
