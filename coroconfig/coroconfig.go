// Package coroconfig is the YAML-backed configuration store for a
// corowire process: worker count, timer wheel parameters, shared-pool
// sizing, listen address, hook state, and log level.
package coroconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every knob a corowire deployment needs at startup. Every
// field has a hard-coded default (see [Default]), so a missing or
// partial YAML document is never an error.
type Config struct {
	Workers            int    `yaml:"workers"`
	WheelSlots         int    `yaml:"wheel_slots"`
	WheelGranularityMS int64  `yaml:"wheel_granularity_ms"`
	SharedPoolSize     int    `yaml:"shared_pool_size"`
	SharedStackBytes   int    `yaml:"shared_stack_bytes"`
	ListenAddr         string `yaml:"listen_addr"`
	HookEnabled        bool   `yaml:"hook_enabled"`
	LogLevel           string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given, and the
// base every [Load] starts from before a YAML document overrides
// individual fields.
func Default() *Config {
	return &Config{
		Workers:            1,
		WheelSlots:         512,
		WheelGranularityMS: 10,
		SharedPoolSize:     0,
		SharedStackBytes:   64 * 1024,
		ListenAddr:         ":8080",
		HookEnabled:        true,
		LogLevel:           "info",
	}
}

// Load reads path as YAML into a copy of [Default], so any field absent
// from the document keeps its default value. A path of "" returns
// Default() directly, skipping the filesystem.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("coroconfig: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("coroconfig: parse %q: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects a Config with non-positive wheel slots, wheel
// granularity, workers, or (when set) shared pool size.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("coroconfig: workers must be positive, got %d", c.Workers)
	}
	if c.WheelSlots <= 0 {
		return fmt.Errorf("coroconfig: wheel_slots must be positive, got %d", c.WheelSlots)
	}
	if c.WheelGranularityMS <= 0 {
		return fmt.Errorf("coroconfig: wheel_granularity_ms must be positive, got %d", c.WheelGranularityMS)
	}
	if c.SharedPoolSize < 0 {
		return fmt.Errorf("coroconfig: shared_pool_size must not be negative, got %d", c.SharedPoolSize)
	}
	if c.SharedStackBytes <= 0 {
		return fmt.Errorf("coroconfig: shared_stack_bytes must be positive, got %d", c.SharedStackBytes)
	}
	return nil
}
