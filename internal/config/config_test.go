package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TickRateHz != 10 || cfg.ViewDistance != 4 || cfg.BufferMargin != 1 {
		t.Fatalf("defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}
}

func TestLoad_OverridesAndKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	body := []byte("view_distance: 8\npersist_attempts: 5\naddr: \":9000\"\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ViewDistance != 8 || cfg.PersistAttempts != 5 || cfg.Addr != ":9000" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.TickRateHz != 10 {
		t.Fatalf("untouched default lost: tick_rate_hz = %d", cfg.TickRateHz)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte("view_distance: -3\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("negative view_distance accepted")
	}
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte("view_distance: [oops\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("malformed yaml accepted")
	}
}
