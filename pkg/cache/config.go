package cache

import (
	"fmt"
	"time"
)

// Defaults used by DefaultConfig.
const (
	DefaultTTL                  = 5 * time.Minute
	DefaultWarmupTTL            = 30 * time.Minute
	DefaultMaxMemoryMB          = 512
	DefaultCompressionThreshold = 1024
	DefaultBatchInvalidation    = 100
	DefaultWarmupConcurrency    = 10
	DefaultStaleWhileRevalidate = 60 * time.Second
	DefaultFetchTimeout         = 15 * time.Second
	DefaultRevalidateTimeout    = 30 * time.Second
	DefaultEvictionHitWeight    = time.Second
)

// evictionTarget is the fraction of the memory budget eviction drains down to.
const evictionTarget = 0.8

// Config holds cache configuration. It is fixed for the lifetime of a Cache.
type Config struct {
	// DefaultTTL is used by Set when no TTL is given.
	DefaultTTL time.Duration

	// WarmupTTL is the TTL of entries written by the warmup scheduler.
	WarmupTTL time.Duration

	// MaxMemoryMB is the budget for the sum of entry sizes in the local store.
	MaxMemoryMB int

	// CompressionThreshold is the encoded size in bytes above which remote
	// payloads are compressed.
	CompressionThreshold int

	// BatchInvalidationSize is the chunk size used by DeleteBatch.
	BatchInvalidationSize int

	// WarmupConcurrency is the batch size of flat warmup.
	WarmupConcurrency int

	// StaleWhileRevalidate is the window before expiry in which warmup
	// entries are served stale and refreshed in the background. It must be
	// shorter than WarmupTTL.
	StaleWhileRevalidate time.Duration

	// FetchTimeout bounds every Fetcher call made by the warmup scheduler.
	FetchTimeout time.Duration

	// RevalidateTimeout bounds every background refresh.
	RevalidateTimeout time.Duration

	// EvictionHitWeight is how much each hit pushes an entry's recency
	// score forward when ranking eviction candidates.
	EvictionHitWeight time.Duration

	// CleanupInterval enables a background sweep of expired entries.
	// Zero disables it; expired entries are still dropped lazily on Get.
	CleanupInterval time.Duration

	// RemoteURL is an optional redis:// URL for the shared backend.
	RemoteURL string
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:            DefaultTTL,
		WarmupTTL:             DefaultWarmupTTL,
		MaxMemoryMB:           DefaultMaxMemoryMB,
		CompressionThreshold:  DefaultCompressionThreshold,
		BatchInvalidationSize: DefaultBatchInvalidation,
		WarmupConcurrency:     DefaultWarmupConcurrency,
		StaleWhileRevalidate:  DefaultStaleWhileRevalidate,
		FetchTimeout:          DefaultFetchTimeout,
		RevalidateTimeout:     DefaultRevalidateTimeout,
		EvictionHitWeight:     DefaultEvictionHitWeight,
	}
}

// Validate checks the configuration. Every failure is a *ConfigError.
func (c Config) Validate() error {
	switch {
	case c.DefaultTTL <= 0:
		return &ConfigError{Field: "DefaultTTL", Value: c.DefaultTTL, Reason: "must be > 0"}
	case c.WarmupTTL <= 0:
		return &ConfigError{Field: "WarmupTTL", Value: c.WarmupTTL, Reason: "must be > 0"}
	case c.MaxMemoryMB <= 0:
		return &ConfigError{Field: "MaxMemoryMB", Value: c.MaxMemoryMB, Reason: "must be > 0"}
	case c.CompressionThreshold < 0:
		return &ConfigError{Field: "CompressionThreshold", Value: c.CompressionThreshold, Reason: "must be >= 0"}
	case c.BatchInvalidationSize <= 0:
		return &ConfigError{Field: "BatchInvalidationSize", Value: c.BatchInvalidationSize, Reason: "must be > 0"}
	case c.WarmupConcurrency <= 0:
		return &ConfigError{Field: "WarmupConcurrency", Value: c.WarmupConcurrency, Reason: "must be > 0"}
	case c.StaleWhileRevalidate < 0:
		return &ConfigError{Field: "StaleWhileRevalidate", Value: c.StaleWhileRevalidate, Reason: "must be >= 0"}
	case c.StaleWhileRevalidate >= c.WarmupTTL:
		return &ConfigError{Field: "StaleWhileRevalidate", Value: c.StaleWhileRevalidate, Reason: "must be < WarmupTTL"}
	case c.FetchTimeout <= 0:
		return &ConfigError{Field: "FetchTimeout", Value: c.FetchTimeout, Reason: "must be > 0"}
	case c.RevalidateTimeout <= 0:
		return &ConfigError{Field: "RevalidateTimeout", Value: c.RevalidateTimeout, Reason: "must be > 0"}
	case c.EvictionHitWeight < 0:
		return &ConfigError{Field: "EvictionHitWeight", Value: c.EvictionHitWeight, Reason: "must be >= 0"}
	case c.CleanupInterval < 0:
		return &ConfigError{Field: "CleanupInterval", Value: c.CleanupInterval, Reason: "must be >= 0"}
	}
	return nil
}

// maxBytes returns the memory budget in bytes.
func (c Config) maxBytes() int64 {
	return int64(c.MaxMemoryMB) * 1024 * 1024
}

func (c Config) String() string {
	return fmt.Sprintf("ttl=%s warmup_ttl=%s max_memory=%dMB swr=%s concurrency=%d",
		c.DefaultTTL, c.WarmupTTL, c.MaxMemoryMB, c.StaleWhileRevalidate, c.WarmupConcurrency)
}
