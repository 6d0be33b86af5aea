// Copyright 2026 The Strata Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for a Strata store and the
// processes serving it.
type Config struct {
	// Paths configures on-disk locations.
	Paths PathsConfig `yaml:"paths"`

	// Store configures the key-value layer.
	Store StoreConfig `yaml:"store"`

	// Cache configures the writeback cache.
	Cache CacheConfig `yaml:"cache"`

	// Quota configures space limits; zero means unlimited.
	Quota QuotaConfig `yaml:"quota"`

	// Maintenance configures background work.
	Maintenance MaintenanceConfig `yaml:"maintenance"`

	// Log configures logging.
	Log LogConfig `yaml:"log"`
}

// PathsConfig configures on-disk locations.
type PathsConfig struct {
	// Data is the key-value store directory.
	Data string `yaml:"data"`
}

// StoreConfig configures the key-value layer.
type StoreConfig struct {
	// KeyFile is the path of the 32-byte master key. Empty disables
	// value encryption (development only).
	KeyFile string `yaml:"key_file"`

	// Compression selects compress-before-seal for large values:
	// "none", "lz4", or "zstd".
	Compression string `yaml:"compression"`
}

// CacheConfig configures the writeback cache.
type CacheConfig struct {
	// BudgetBytes is the global byte budget B.
	BudgetBytes int64 `yaml:"budget_bytes"`

	// CeilingBytes is the per-file ceiling F; files that would grow
	// past it bypass the cache.
	CeilingBytes uint64 `yaml:"ceiling_bytes"`
}

// QuotaConfig configures space limits.
type QuotaConfig struct {
	MaxBytes  uint64 `yaml:"max_bytes"`
	MaxInodes uint64 `yaml:"max_inodes"`
}

// MaintenanceConfig configures background work.
type MaintenanceConfig struct {
	// DrainInterval paces the tombstone drain (Go duration string).
	DrainInterval string `yaml:"drain_interval"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`
}

// Default returns the configuration used when fields are unset.
func Default() Config {
	return Config{
		Store:       StoreConfig{Compression: "zstd"},
		Cache:       CacheConfig{BudgetBytes: 256 << 20, CeilingBytes: 512 << 10},
		Maintenance: MaintenanceConfig{DrainInterval: "30s"},
		Log:         LogConfig{Level: "info"},
	}
}

// Load reads and validates the configuration file at path. Unset
// fields take their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks field values and cross-field consistency.
func (c *Config) Validate() error {
	switch c.Store.Compression {
	case "none", "lz4", "zstd":
	default:
		return fmt.Errorf("config: unknown compression %q", c.Store.Compression)
	}
	if c.Cache.BudgetBytes < 0 {
		return fmt.Errorf("config: negative cache budget %d", c.Cache.BudgetBytes)
	}
	if c.Cache.CeilingBytes > uint64(c.Cache.BudgetBytes) {
		return fmt.Errorf("config: cache ceiling %d exceeds budget %d",
			c.Cache.CeilingBytes, c.Cache.BudgetBytes)
	}
	if _, err := c.DrainInterval(); err != nil {
		return err
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	return nil
}

// DrainInterval returns the parsed tombstone-drain interval.
func (c *Config) DrainInterval() (time.Duration, error) {
	interval, err := time.ParseDuration(c.Maintenance.DrainInterval)
	if err != nil {
		return 0, fmt.Errorf("config: drain_interval: %w", err)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("config: non-positive drain_interval %v", interval)
	}
	return interval, nil
}
