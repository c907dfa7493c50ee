package coroconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() should validate, got %v", err)
	}
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if *cfg != *Default() {
		t.Fatalf("expected Load(\"\") to equal Default(), got %+v", cfg)
	}
}

func TestLoadOverridesPartialDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("workers: 4\nwheel_slots: 1024\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 4 {
		t.Fatalf("expected workers=4, got %d", cfg.Workers)
	}
	if cfg.WheelSlots != 1024 {
		t.Fatalf("expected wheel_slots=1024, got %d", cfg.WheelSlots)
	}
	// untouched fields keep their defaults
	if cfg.ListenAddr != Default().ListenAddr {
		t.Fatalf("expected listen_addr to keep default, got %s", cfg.ListenAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected overridden config to validate, got %v", err)
	}
}

func TestValidateRejectsNonPositiveFields(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"workers", func(c *Config) { c.Workers = 0 }},
		{"wheel_slots", func(c *Config) { c.WheelSlots = 0 }},
		{"wheel_granularity_ms", func(c *Config) { c.WheelGranularityMS = 0 }},
		{"shared_pool_size", func(c *Config) { c.SharedPoolSize = -1 }},
		{"shared_stack_bytes", func(c *Config) { c.SharedStackBytes = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mut(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected Validate to reject invalid %s", tc.name)
			}
		})
	}
}
