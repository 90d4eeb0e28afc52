package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/model"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	// Validate server config
	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	// Validate engine config
	if err := validateEngineConfig(&cfg.Engine); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	// Validate sources
	if len(cfg.Sources) == 0 {
		return ErrNoSourcesConfigured
	}
	enabled := 0
	for i, source := range cfg.Sources {
		if err := validateSourceConfig(&source); err != nil {
			return fmt.Errorf("source %d (%s): %w", i, source.Name, err)
		}
		if source.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return ErrNoSourcesEnabled
	}

	// Validate logging config
	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateServerConfig(cfg *ServerConfig) error {
	// Validate TLS config
	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.Cert == "" || cfg.HTTP.TLS.Key == "" {
			return ErrTLSConfigIncomplete
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Cert); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSCertNotFound, cfg.HTTP.TLS.Cert)
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Key); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSKeyNotFound, cfg.HTTP.TLS.Key)
		}
	}

	return nil
}

func validateEngineConfig(cfg *EngineConfig) error {
	if cfg.Freshness.Multiplier < 0 {
		return fmt.Errorf("freshness.multiplier must be >= 0")
	}
	if cfg.Freshness.HardBoundMultiplier < 1 {
		return fmt.Errorf("freshness.hard_bound_multiplier must be >= 1")
	}
	if cfg.Freshness.LoadThreshold < 1 {
		return fmt.Errorf("freshness.load_threshold must be >= 1")
	}

	if cfg.Cache.MemoryTTL.ToDuration() <= 0 {
		return fmt.Errorf("cache.memory_ttl must be positive")
	}
	if cfg.Cache.Redis.Enabled && cfg.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr must be specified when redis is enabled")
	}

	if cfg.Refresh.JobTimeout.ToDuration() <= 0 {
		return fmt.Errorf("refresh.job_timeout must be positive")
	}
	if cfg.Refresh.FetchLimit < 0 {
		return fmt.Errorf("refresh.fetch_limit must be >= 0")
	}
	for _, p := range cfg.Refresh.WarmupPeriods {
		if _, err := model.ParsePeriod(p); err != nil {
			return fmt.Errorf("refresh.warmup_periods: %w", err)
		}
	}

	return nil
}

func validateSourceConfig(cfg *SourceConfig) error {
	// Validate name
	if cfg.Name == "" {
		return ErrSourceNameRequired
	}

	// Priority should be positive
	if cfg.Priority < 0 {
		return fmt.Errorf("priority must be >= 0")
	}

	// Weight must be non-negative
	if cfg.Weight < 0 {
		return ErrSourceWeightMustBeNonNegative
	}

	// Quota sanity
	if cfg.Quota.Calls < 0 {
		return fmt.Errorf("quota.calls must be >= 0")
	}
	if cfg.Quota.Window.ToDuration() < 0 {
		return fmt.Errorf("quota.window must be >= 0")
	}

	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	// Validate level
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	// Validate format
	formatValid := strings.ToLower(cfg.Format) == "json" || strings.ToLower(cfg.Format) == "text"
	if !formatValid {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}
