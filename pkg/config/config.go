// Package config loads the statuscache service configuration from
// defaults, an optional YAML file and STATUSCACHE_* environment variables,
// in increasing order of precedence.
package config

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/statuscache/pkg/cache"
	"github.com/Sternrassler/statuscache/pkg/logging"
	"github.com/Sternrassler/statuscache/pkg/statuspage"
)

// EnvPrefix prefixes every environment override, e.g.
// STATUSCACHE_CACHE_MAX_MEMORY_MB=256.
const EnvPrefix = "STATUSCACHE"

// Config is the complete service configuration. Durations are in
// milliseconds.
type Config struct {
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Warmup WarmupConfig `yaml:"warmup" mapstructure:"warmup"`
	Fetch  FetchConfig  `yaml:"fetch" mapstructure:"fetch"`
}

// CacheConfig mirrors cache.Config.
type CacheConfig struct {
	DefaultTTLMs              int64  `yaml:"default_ttl_ms" mapstructure:"default_ttl_ms"`
	WarmupTTLMs               int64  `yaml:"warmup_ttl_ms" mapstructure:"warmup_ttl_ms"`
	MaxMemoryMB               int    `yaml:"max_memory_mb" mapstructure:"max_memory_mb"`
	CompressionThresholdBytes int    `yaml:"compression_threshold_bytes" mapstructure:"compression_threshold_bytes"`
	BatchInvalidationSize     int    `yaml:"batch_invalidation_size" mapstructure:"batch_invalidation_size"`
	WarmupConcurrency         int    `yaml:"warmup_concurrency" mapstructure:"warmup_concurrency"`
	StaleWhileRevalidateMs    int64  `yaml:"stale_while_revalidate_ms" mapstructure:"stale_while_revalidate_ms"`
	RevalidateTimeoutMs       int64  `yaml:"revalidate_timeout_ms" mapstructure:"revalidate_timeout_ms"`
	EvictionHitWeightMs       int64  `yaml:"eviction_hit_weight_ms" mapstructure:"eviction_hit_weight_ms"`
	CleanupIntervalMs         int64  `yaml:"cleanup_interval_ms" mapstructure:"cleanup_interval_ms"`
	RemoteURL                 string `yaml:"remote_url" mapstructure:"remote_url"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string `yaml:"addr" mapstructure:"addr"`
	ReadTimeoutMs     int64  `yaml:"read_timeout_ms" mapstructure:"read_timeout_ms"`
	WriteTimeoutMs    int64  `yaml:"write_timeout_ms" mapstructure:"write_timeout_ms"`
	ShutdownTimeoutMs int64  `yaml:"shutdown_timeout_ms" mapstructure:"shutdown_timeout_ms"`
}

// LogConfig configures pkg/logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Pretty bool   `yaml:"pretty" mapstructure:"pretty"`
}

// WarmupConfig configures scheduled warmup.
type WarmupConfig struct {
	// Schedule is a cron expression; empty disables scheduled warmup.
	Schedule string `yaml:"schedule" mapstructure:"schedule"`

	// OnStartup runs one warmup before the server starts accepting requests.
	OnStartup bool `yaml:"on_startup" mapstructure:"on_startup"`

	// ProvidersFile is the providers YAML; see statuspage.ParseProviders.
	ProvidersFile string `yaml:"providers_file" mapstructure:"providers_file"`

	// PriorityIDs extends the providers flagged priority in the file.
	PriorityIDs []string `yaml:"priority_ids" mapstructure:"priority_ids"`

	FetchTimeoutMs int64 `yaml:"fetch_timeout_ms" mapstructure:"fetch_timeout_ms"`
}

// FetchConfig configures the status page client.
type FetchConfig struct {
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutMs        int64  `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int64  `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// Default returns the built-in defaults.
func Default() Config {
	c := cache.DefaultConfig()
	retry := statuspage.DefaultRetryConfig()

	return Config{
		Cache: CacheConfig{
			DefaultTTLMs:              c.DefaultTTL.Milliseconds(),
			WarmupTTLMs:               c.WarmupTTL.Milliseconds(),
			MaxMemoryMB:               c.MaxMemoryMB,
			CompressionThresholdBytes: c.CompressionThreshold,
			BatchInvalidationSize:     c.BatchInvalidationSize,
			WarmupConcurrency:         c.WarmupConcurrency,
			StaleWhileRevalidateMs:    c.StaleWhileRevalidate.Milliseconds(),
			RevalidateTimeoutMs:       c.RevalidateTimeout.Milliseconds(),
			EvictionHitWeightMs:       c.EvictionHitWeight.Milliseconds(),
			CleanupIntervalMs:         time.Minute.Milliseconds(),
		},
		Server: ServerConfig{
			Addr:              ":8080",
			ReadTimeoutMs:     5000,
			WriteTimeoutMs:    30000,
			ShutdownTimeoutMs: 10000,
		},
		Log: LogConfig{
			Level: string(logging.LevelInfo),
		},
		Warmup: WarmupConfig{
			Schedule:       "*/10 * * * *",
			OnStartup:      true,
			ProvidersFile:  "providers.yaml",
			PriorityIDs:    []string{},
			FetchTimeoutMs: c.FetchTimeout.Milliseconds(),
		},
		Fetch: FetchConfig{
			UserAgent:        "statuscache/0.1.0",
			TimeoutMs:        10000,
			MaxAttempts:      retry.MaxAttempts,
			InitialBackoffMs: retry.InitialBackoff.Milliseconds(),
		},
	}
}

// Load builds the configuration. path may be empty to skip the file.
func Load(path string) (Config, error) {
	// Viper only sees env overrides for keys it already knows, so the
	// defaults are merged in as a YAML document first.
	v := viper.New()
	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return Config{}, fmt.Errorf("marshal defaults: %w", err)
	}
	v.SetConfigType("yaml")
	if err := v.MergeConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, fmt.Errorf("merge defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section. Cache errors are *cache.ConfigError.
func (c Config) Validate() error {
	if err := c.CacheConfig().Validate(); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Fetch.UserAgent == "" {
		return fmt.Errorf("fetch.user_agent is required")
	}
	if c.Fetch.TimeoutMs <= 0 {
		return fmt.Errorf("fetch.timeout_ms must be > 0 (got %d)", c.Fetch.TimeoutMs)
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("fetch.max_attempts must be >= 1 (got %d)", c.Fetch.MaxAttempts)
	}
	return nil
}

// CacheConfig converts the cache section.
func (c Config) CacheConfig() cache.Config {
	return cache.Config{
		DefaultTTL:            ms(c.Cache.DefaultTTLMs),
		WarmupTTL:             ms(c.Cache.WarmupTTLMs),
		MaxMemoryMB:           c.Cache.MaxMemoryMB,
		CompressionThreshold:  c.Cache.CompressionThresholdBytes,
		BatchInvalidationSize: c.Cache.BatchInvalidationSize,
		WarmupConcurrency:     c.Cache.WarmupConcurrency,
		StaleWhileRevalidate:  ms(c.Cache.StaleWhileRevalidateMs),
		FetchTimeout:          ms(c.Warmup.FetchTimeoutMs),
		RevalidateTimeout:     ms(c.Cache.RevalidateTimeoutMs),
		EvictionHitWeight:     ms(c.Cache.EvictionHitWeightMs),
		CleanupInterval:       ms(c.Cache.CleanupIntervalMs),
		RemoteURL:             c.Cache.RemoteURL,
	}
}

// LoggingConfig converts the log section. Level must have passed Validate.
func (c Config) LoggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level, _ = logging.ParseLevel(c.Log.Level)
	lc.Pretty = c.Log.Pretty
	return lc
}

// FetchConfig converts the fetch section.
func (c Config) FetchConfig() statuspage.Config {
	fc := statuspage.DefaultConfig(c.Fetch.UserAgent)
	fc.Timeout = ms(c.Fetch.TimeoutMs)
	fc.Retry.MaxAttempts = c.Fetch.MaxAttempts
	fc.Retry.InitialBackoff = ms(c.Fetch.InitialBackoffMs)
	return fc
}

func (s ServerConfig) ReadTimeout() time.Duration     { return ms(s.ReadTimeoutMs) }
func (s ServerConfig) WriteTimeout() time.Duration    { return ms(s.WriteTimeoutMs) }
func (s ServerConfig) ShutdownTimeout() time.Duration { return ms(s.ShutdownTimeoutMs) }

func ms(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}
