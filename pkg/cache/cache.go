package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/statuscache/internal/routine"
	"github.com/Sternrassler/statuscache/pkg/logging"
)

// Option configures a Cache.
type Option func(*options)

type options struct {
	logger  *zerolog.Logger
	backend Backend
	now     func() time.Time
	keyFunc func(Subject) string
}

// WithLogger sets the logger. Defaults to the "cache" component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = &logger }
}

// WithBackend sets the remote backend, taking precedence over Config.RemoteURL.
func WithBackend(backend Backend) Option {
	return func(o *options) { o.backend = backend }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithKeyFunc sets how warmup derives cache keys from subjects.
// Defaults to SubjectKey.
func WithKeyFunc(fn func(Subject) string) Option {
	return func(o *options) { o.keyFunc = fn }
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits             int64   `json:"hits"`
	Misses           int64   `json:"misses"`
	Sets             int64   `json:"sets"`
	Deletes          int64   `json:"deletes"`
	Evictions        int64   `json:"evictions"`
	WarmupHits       int64   `json:"warmup_hits"`
	StaleServed      int64   `json:"stale_served"`
	MemoryUsageBytes int64   `json:"memory_usage_bytes"`
	MemoryUsageMB    float64 `json:"memory_usage_mb"`
	EntryCount       int     `json:"entry_count"`
}

// Cache is a size-bounded, TTL-based cache of T values with optional
// remote backend, stale-while-revalidate for warmup entries, warmup
// scheduling and pattern invalidation.
//
// All cache operations are best-effort: failures are logged and degrade
// to a miss, never returned to the caller.
type Cache[T any] struct {
	cfg     Config
	logger  zerolog.Logger
	backend Backend
	now     func() time.Time
	keyFunc func(Subject) string

	// mu guards everything below.
	mu      sync.Mutex
	entries map[string]*Entry[T]
	memory  int64
	stats   Stats
	closed  bool

	// tickets maps each key under revalidation to the entry being refreshed.
	tickets map[string]*Entry[T]

	runner *routine.Runner
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a cache. A *ConfigError is the only error it returns.
func New[T any](cfg Config, opts ...Option) (*Cache[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		now:     time.Now,
		keyFunc: SubjectKey,
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.NewLogger("cache")
	if o.logger != nil {
		logger = *o.logger
	}

	c := &Cache[T]{
		cfg:     cfg,
		logger:  logger,
		backend: o.backend,
		now:     o.now,
		keyFunc: o.keyFunc,
		entries: make(map[string]*Entry[T]),
		tickets: make(map[string]*Entry[T]),
		runner:  routine.New(logger),
	}

	if c.backend == nil && cfg.RemoteURL != "" {
		backend, err := NewRedisBackendFromURL(cfg.RemoteURL, DefaultBreakerConfig())
		if err != nil {
			return nil, err
		}
		c.backend = backend
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	if cfg.CleanupInterval > 0 {
		c.runner.GoWithContext(c.ctx, "janitor", c.cleanupLoop)
	}

	c.logger.Info().
		Str("config", cfg.String()).
		Bool("remote", c.backend != nil).
		Msg("Cache initialized")

	return c, nil
}

// Config returns the cache configuration.
func (c *Cache[T]) Config() Config {
	return c.cfg
}

// Backend returns the remote backend, or nil when running local only.
func (c *Cache[T]) Backend() Backend {
	return c.backend
}

// Get returns the value for key. The remote backend is consulted first
// when configured; remote hits are not copied into the local store, but a
// stale local warmup entry for key is still revalidated.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	if c.backend != nil {
		if v, ok := c.getRemote(ctx, key); ok {
			c.mu.Lock()
			c.stats.Hits++
			if e, found := c.entries[key]; found && e.Warmup &&
				e.state(c.now(), c.cfg.StaleWhileRevalidate) == stateStale {
				c.serveStaleLocked(key, e)
			}
			c.mu.Unlock()
			CacheHits.WithLabelValues("remote").Inc()
			c.logger.Debug().Str("key", key).Str("layer", "remote").Msg("Cache hit")
			return v, true
		}
	}
	return c.getLocal(key)
}

func (c *Cache[T]) getLocal(key string) (T, bool) {
	var zero T
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.missLocked(key)
		return zero, false
	}

	state := e.state(now, c.cfg.StaleWhileRevalidate)
	if state == stateExpired {
		c.removeLocked(key)
		c.missLocked(key)
		return zero, false
	}

	e.HitCount++
	c.stats.Hits++
	CacheHits.WithLabelValues("local").Inc()
	if e.Warmup {
		c.stats.WarmupHits++
		WarmupHits.Inc()
	}

	if state == stateStale && e.Warmup {
		c.serveStaleLocked(key, e)
	}

	c.logger.Debug().
		Str("key", key).
		Str("layer", "local").
		Str("state", state.String()).
		Int64("hit_count", e.HitCount).
		Msg("Cache hit")

	return e.Value, true
}

func (c *Cache[T]) serveStaleLocked(key string, e *Entry[T]) {
	c.stats.StaleServed++
	StaleServed.Inc()
	c.revalidateLocked(key, e)
}

func (c *Cache[T]) missLocked(key string) {
	c.stats.Misses++
	CacheMisses.Inc()
	c.logger.Debug().Str("key", key).Msg("Cache miss")
}

func (c *Cache[T]) getRemote(ctx context.Context, key string) (T, bool) {
	var zero T

	payload, err := c.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrBackendMiss) {
			c.backendFailure("get", key, err)
		}
		return zero, false
	}

	data, err := unpackPayload(payload)
	if err == nil {
		var v T
		if v, err = decodeValue[T](data); err == nil {
			return v, true
		}
	}

	c.logger.Warn().Err(err).Str("key", key).Msg("Discarding undecodable remote cache value")
	return zero, false
}

// Set stores value under key, replacing any existing entry. The optional
// ttl defaults to Config.DefaultTTL.
func (c *Cache[T]) Set(ctx context.Context, key string, value T, ttl ...time.Duration) {
	d := c.cfg.DefaultTTL
	if len(ttl) > 0 && ttl[0] > 0 {
		d = ttl[0]
	}
	c.write(ctx, key, value, d, false, nil)
}

// write is the single write path for Set, warmup and revalidation.
func (c *Cache[T]) write(ctx context.Context, key string, value T, ttl time.Duration, warmup bool, refresh refreshFunc[T]) {
	data, encErr := encodeValue(value)
	size := int64(len(data))
	if encErr != nil {
		size = fallbackSize(value)
		c.logger.Warn().Err(encErr).Str("key", key).Int64("size", size).
			Msg("Value not serializable, using fallback size and skipping remote write")
	}

	c.mu.Lock()
	c.storeLocked(key, value, ttl, size, warmup, refresh)
	c.mu.Unlock()

	if encErr == nil {
		c.setRemote(ctx, key, data, ttl)
	}
}

// storeLocked writes an entry, counts the set and enforces the budget.
func (c *Cache[T]) storeLocked(key string, value T, ttl time.Duration, size int64, warmup bool, refresh refreshFunc[T]) {
	if old, ok := c.entries[key]; ok {
		c.memory -= old.SizeBytes
	}
	c.entries[key] = &Entry[T]{
		Value:     value,
		CreatedAt: c.now(),
		TTL:       ttl,
		SizeBytes: size,
		Warmup:    warmup,
		refresh:   refresh,
	}
	c.memory += size
	c.stats.Sets++
	CacheSets.Inc()

	c.logger.Debug().
		Str("key", key).
		Dur("ttl", ttl).
		Int64("size", size).
		Bool("warmup", warmup).
		Msg("Cache set")

	c.evictLocked()
	c.updateGaugesLocked()
}

// setRemote mirrors a write to the backend. The TTL is truncated to whole
// seconds; writes with a TTL under one second stay local only.
func (c *Cache[T]) setRemote(ctx context.Context, key string, data []byte, ttl time.Duration) {
	if c.backend == nil {
		return
	}
	seconds := ttl.Milliseconds() / 1000
	if seconds <= 0 {
		c.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("TTL below one second, skipping remote write")
		return
	}
	if err := c.backend.SetEx(ctx, key, packPayload(data, c.cfg.CompressionThreshold), seconds); err != nil {
		c.backendFailure("set", key, err)
	}
}

// Delete removes key from the local store and the backend.
func (c *Cache[T]) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	c.removeLocked(key)
	c.stats.Deletes++
	c.updateGaugesLocked()
	c.mu.Unlock()
	CacheDeletes.Inc()

	if c.backend != nil {
		if err := c.backend.Del(ctx, key); err != nil {
			c.backendFailure("delete", key, err)
		}
	}
}

func (c *Cache[T]) removeLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	c.memory -= e.SizeBytes
	delete(c.entries, key)
}

// Inspect returns a copy of the local entry for key without counting a
// read or checking expiry.
func (c *Cache[T]) Inspect(key string) (Entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry[T]{}, false
	}
	return *e, true
}

// Size returns the number of entries in the local store.
func (c *Cache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.MemoryUsageBytes = c.memory
	s.MemoryUsageMB = float64(c.memory) / (1024 * 1024)
	s.EntryCount = len(c.entries)
	return s
}

// Clear drops every entry, resets the stats and flushes the backend. The
// flush removes every key in the backend, including state other components
// share through it.
// Revalidations in flight are discarded when they complete.
func (c *Cache[T]) Clear(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]*Entry[T])
	c.memory = 0
	c.stats = Stats{}
	c.tickets = make(map[string]*Entry[T])
	c.updateGaugesLocked()
	c.mu.Unlock()

	if c.backend != nil {
		if err := c.backend.FlushAll(ctx); err != nil {
			c.backendFailure("flush", "", err)
		}
	}
	c.logger.Info().Msg("Cache cleared")
}

// Close stops background work and waits for in-flight revalidations.
// It is safe to call multiple times.
func (c *Cache[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.runner.Wait()
	return nil
}

func (c *Cache[T]) backendFailure(operation, key string, err error) {
	BackendErrors.WithLabelValues(operation).Inc()
	event := c.logger.Warn()
	if errors.Is(err, ErrBackendUnavailable) {
		// The breaker is open; one warning per trip is enough.
		event = c.logger.Debug()
	}
	event.Err(err).
		Str("operation", operation).
		Str("key", key).
		Msg("Cache backend error, falling back to local store")
}

func (c *Cache[T]) updateGaugesLocked() {
	MemoryBytes.Set(float64(c.memory))
	Entries.Set(float64(len(c.entries)))
}

// cleanupLoop periodically removes expired entries nobody reads again.
func (c *Cache[T]) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := c.removeExpired(); removed > 0 {
				c.logger.Debug().Int("removed", removed).Msg("Expired entries swept")
			}
		}
	}
}

func (c *Cache[T]) removeExpired() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if e.IsExpired(now) {
			c.removeLocked(key)
			removed++
		}
	}
	if removed > 0 {
		c.updateGaugesLocked()
	}
	return removed
}
