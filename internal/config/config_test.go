package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.APIPort != "8080" {
		t.Fatalf("expected default API port 8080, got %s", cfg.APIPort)
	}
	if cfg.MonitorWindowHours != 24 {
		t.Fatalf("expected default monitor window 24h, got %d", cfg.MonitorWindowHours)
	}
	if cfg.MonitorMinSamples != 10 {
		t.Fatalf("expected default min samples 10, got %d", cfg.MonitorMinSamples)
	}
	if cfg.MonitorDropThreshold != 0.10 {
		t.Fatalf("expected default drop threshold 0.10, got %v", cfg.MonitorDropThreshold)
	}
	if len(cfg.CriticalFields) != 3 {
		t.Fatalf("expected 3 default critical fields, got %v", cfg.CriticalFields)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("API_PORT", "9000")
	t.Setenv("MONITOR_DROP_THRESHOLD", "0.25")
	t.Setenv("CRITICAL_FIELDS", "hs_code, gross_weight ,")

	cfg := Load()

	if cfg.APIPort != "9000" {
		t.Fatalf("expected API port 9000, got %s", cfg.APIPort)
	}
	if cfg.MonitorDropThreshold != 0.25 {
		t.Fatalf("expected drop threshold 0.25, got %v", cfg.MonitorDropThreshold)
	}
	want := []string{"hs_code", "gross_weight"}
	if len(cfg.CriticalFields) != len(want) {
		t.Fatalf("expected %v, got %v", want, cfg.CriticalFields)
	}
	for i, field := range want {
		if cfg.CriticalFields[i] != field {
			t.Fatalf("expected %v, got %v", want, cfg.CriticalFields)
		}
	}
}

func TestLoadInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("MONITOR_WINDOW_HOURS", "not-a-number")
	t.Setenv("MONITOR_DROP_THRESHOLD", "ten percent")

	cfg := Load()

	if cfg.MonitorWindowHours != 24 {
		t.Fatalf("expected fallback window 24h, got %d", cfg.MonitorWindowHours)
	}
	if cfg.MonitorDropThreshold != 0.10 {
		t.Fatalf("expected fallback drop threshold 0.10, got %v", cfg.MonitorDropThreshold)
	}
}

func TestLoadAppliesMonitorOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	overlay := "schedule: \"*/15 * * * *\"\nwindowHours: 48\nminSamples: 25\ndropThreshold: 0.15\n"
	if err := os.WriteFile(path, []byte(overlay), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("MONITOR_CONFIG_PATH", path)

	cfg := Load()

	if cfg.MonitorSchedule != "*/15 * * * *" {
		t.Fatalf("expected overlay schedule, got %s", cfg.MonitorSchedule)
	}
	if cfg.MonitorWindowHours != 48 {
		t.Fatalf("expected overlay window 48h, got %d", cfg.MonitorWindowHours)
	}
	if cfg.MonitorMinSamples != 25 {
		t.Fatalf("expected overlay min samples 25, got %d", cfg.MonitorMinSamples)
	}
	if cfg.MonitorDropThreshold != 0.15 {
		t.Fatalf("expected overlay drop threshold 0.15, got %v", cfg.MonitorDropThreshold)
	}
	if cfg.MonitorMaxParallel != 4 {
		t.Fatalf("expected default max parallel to survive partial overlay, got %d", cfg.MonitorMaxParallel)
	}
}

func TestLoadIgnoresBrokenOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	if err := os.WriteFile(path, []byte(":: not yaml ::"), 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("MONITOR_CONFIG_PATH", path)
	t.Setenv("MONITOR_WINDOW_HOURS", "36")

	cfg := Load()

	if cfg.MonitorWindowHours != 36 {
		t.Fatalf("expected env window 36h to survive broken overlay, got %d", cfg.MonitorWindowHours)
	}
}
