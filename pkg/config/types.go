package config

import "time"

// Config is the root configuration structure
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Engine  EngineConfig   `yaml:"engine"`
	Sources []SourceConfig `yaml:"sources"`
	Metrics MetricsConfig  `yaml:"metrics"`
	Logging LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP request layer
type ServerConfig struct {
	HTTP      HTTPConfig `yaml:"http"`
	WebSocket WSConfig   `yaml:"websocket"`
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Addr string    `yaml:"addr"`
	TLS  TLSConfig `yaml:"tls"`
}

// WSConfig configures the WebSocket server
type WSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TLSConfig holds TLS certificate configuration
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

// EngineConfig configures the aggregation and caching engine
type EngineConfig struct {
	Freshness FreshnessConfig `yaml:"freshness"`
	Cache     CacheConfig     `yaml:"cache"`
	Refresh   RefreshConfig   `yaml:"refresh"`
}

// FreshnessConfig configures the staleness policy
type FreshnessConfig struct {
	// Multiplier is the staleness threshold as a fraction of the period
	// duration (default 0.003, i.e. 0.3%).
	Multiplier float64 `yaml:"multiplier"`
	// HardBoundMultiplier bounds how far past the soft threshold cache may
	// be served under load (default 10).
	HardBoundMultiplier float64 `yaml:"hard_bound_multiplier"`
	// LoadThreshold is the in-flight job count that switches the policy to
	// preferring cache (default 8).
	LoadThreshold int `yaml:"load_threshold"`
}

// CacheConfig configures the two cache tiers
type CacheConfig struct {
	// MemoryTTL caps the absolute age of memory-tier entries.
	MemoryTTL Duration `yaml:"memory_ttl"`
	// SweepInterval is the memory janitor cadence.
	SweepInterval Duration    `yaml:"sweep_interval"`
	Redis         RedisConfig `yaml:"redis"`
}

// RedisConfig configures the persistent cache tier
type RedisConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTL      Duration `yaml:"ttl"`
}

// RefreshConfig configures the background refresh coordinator
type RefreshConfig struct {
	// JobTimeout bounds a refresh job's total wall-clock time.
	JobTimeout Duration `yaml:"job_timeout"`
	// AdmissionInterval is the retry cadence while all sources are rate-limited.
	AdmissionInterval Duration `yaml:"admission_interval"`
	// Retention keeps terminal jobs queryable for status polling.
	Retention Duration `yaml:"retention"`
	// WaitTimeout bounds how long a ranking request blocks on a joined job.
	WaitTimeout Duration `yaml:"wait_timeout"`
	// FetchLimit caps the number of assets requested from each source.
	FetchLimit int `yaml:"fetch_limit"`
	// WarmupPeriods are refreshed at startup (default 24h, 7d, 30d).
	WarmupPeriods []string `yaml:"warmup_periods"`
}

// SourceConfig configures a market data source
type SourceConfig struct {
	Name     string                 `yaml:"name"`
	Enabled  bool                   `yaml:"enabled"`
	Priority int                    `yaml:"priority"`
	Weight   float64                `yaml:"weight"`
	Quota    QuotaConfig            `yaml:"quota"`
	Config   map[string]interface{} `yaml:"config"`
}

// QuotaConfig is a source's call budget: Calls per Window
type QuotaConfig struct {
	Calls  int      `yaml:"calls"`
	Window Duration `yaml:"window"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
