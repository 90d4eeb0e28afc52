// Package config provides configuration loading and validation for the
// aggregation engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from YAML file and environment variables.
func Load(path string) (*Config, error) {
	// Validate and sanitize path
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	// Read config file
	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in YAML
	expanded := os.ExpandEnv(string(data))

	// Parse YAML
	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults
	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = ":8080"
	}

	// Freshness defaults
	if cfg.Engine.Freshness.Multiplier == 0 {
		cfg.Engine.Freshness.Multiplier = 0.003
	}
	if cfg.Engine.Freshness.HardBoundMultiplier == 0 {
		cfg.Engine.Freshness.HardBoundMultiplier = 10
	}
	if cfg.Engine.Freshness.LoadThreshold == 0 {
		cfg.Engine.Freshness.LoadThreshold = 8
	}

	// Cache defaults
	if cfg.Engine.Cache.MemoryTTL.ToDuration() == 0 {
		cfg.Engine.Cache.MemoryTTL = Duration(45 * 60 * 1e9) // 45 minutes
	}
	if cfg.Engine.Cache.SweepInterval.ToDuration() == 0 {
		cfg.Engine.Cache.SweepInterval = Duration(5 * 60 * 1e9) // 5 minutes
	}
	if cfg.Engine.Cache.Redis.Enabled && cfg.Engine.Cache.Redis.Addr == "" {
		cfg.Engine.Cache.Redis.Addr = "localhost:6379"
	}
	if cfg.Engine.Cache.Redis.TTL.ToDuration() == 0 {
		cfg.Engine.Cache.Redis.TTL = Duration(24 * 60 * 60 * 1e9) // 24 hours
	}

	// Refresh defaults
	if cfg.Engine.Refresh.JobTimeout.ToDuration() == 0 {
		cfg.Engine.Refresh.JobTimeout = Duration(60 * 1e9) // 60 seconds
	}
	if cfg.Engine.Refresh.AdmissionInterval.ToDuration() == 0 {
		cfg.Engine.Refresh.AdmissionInterval = Duration(2 * 1e9) // 2 seconds
	}
	if cfg.Engine.Refresh.Retention.ToDuration() == 0 {
		cfg.Engine.Refresh.Retention = Duration(10 * 60 * 1e9) // 10 minutes
	}
	if cfg.Engine.Refresh.WaitTimeout.ToDuration() == 0 {
		cfg.Engine.Refresh.WaitTimeout = Duration(15 * 1e9) // 15 seconds
	}
	if cfg.Engine.Refresh.FetchLimit == 0 {
		cfg.Engine.Refresh.FetchLimit = 500
	}
	if len(cfg.Engine.Refresh.WarmupPeriods) == 0 {
		cfg.Engine.Refresh.WarmupPeriods = []string{"24h", "7d", "30d"}
	}

	// Metrics defaults
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	// Source defaults
	for i := range cfg.Sources {
		if cfg.Sources[i].Weight == 0 {
			cfg.Sources[i].Weight = 1.0
		}
		if cfg.Sources[i].Quota.Calls == 0 {
			cfg.Sources[i].Quota.Calls = 10
		}
		if cfg.Sources[i].Quota.Window.ToDuration() == 0 {
			cfg.Sources[i].Quota.Window = Duration(60 * 1e9) // 1 minute
		}
	}
}

// GetString retrieves a string value from the source configuration.
func (sc *SourceConfig) GetString(key, defaultValue string) string {
	if val, ok := sc.Config[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultValue
}

// GetInt retrieves an integer from source config.
func (sc *SourceConfig) GetInt(key string, defaultValue int) int {
	if val, ok := sc.Config[key]; ok {
		if i, ok := val.(int); ok {
			return i
		}
	}
	return defaultValue
}

// GetBool retrieves a boolean from source config.
func (sc *SourceConfig) GetBool(key string, defaultValue bool) bool {
	if val, ok := sc.Config[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return defaultValue
}

// EnabledSources returns the enabled sources ordered by ascending priority.
// A lower priority number means the source is more trusted.
func (c *Config) EnabledSources() []SourceConfig {
	enabled := make([]SourceConfig, 0, len(c.Sources))
	for _, src := range c.Sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority < enabled[j].Priority
	})
	return enabled
}
