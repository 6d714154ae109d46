package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// Backend is a shared key-value store consulted before the local store.
// Values are opaque bytes; TTLs are whole seconds.
type Backend interface {
	// Get returns ErrBackendMiss when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	SetEx(ctx context.Context, key string, value []byte, ttlSeconds int64) error
	Del(ctx context.Context, keys ...string) error
	FlushAll(ctx context.Context) error
}

// BreakerConfig controls the circuit breaker in front of the Redis backend.
type BreakerConfig struct {
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration

	// OpTimeout bounds every single Redis call.
	OpTimeout time.Duration
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
		OpTimeout:           100 * time.Millisecond,
	}
}

// RedisBackend implements Backend over go-redis, guarded by a circuit
// breaker so an unreachable server costs one fast failure per call.
type RedisBackend struct {
	redis   *redis.Client
	breaker *gobreaker.CircuitBreaker
	cfg     BreakerConfig
}

// NewRedisBackend creates a Backend from a Redis client.
func NewRedisBackend(redisClient *redis.Client, cfg BreakerConfig) *RedisBackend {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = DefaultBreakerConfig().ConsecutiveFailures
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = DefaultBreakerConfig().OpTimeout
	}

	threshold := cfg.ConsecutiveFailures
	return &RedisBackend{
		redis: redisClient,
		cfg:   cfg,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "statuscache-redis",
			Timeout: cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		}),
	}
}

// NewRedisBackendFromURL parses a redis:// URL and builds a backend.
func NewRedisBackendFromURL(rawURL string, cfg BreakerConfig) (*RedisBackend, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, &ConfigError{Field: "RemoteURL", Value: rawURL, Reason: err.Error()}
	}
	return NewRedisBackend(redis.NewClient(opts), cfg), nil
}

// Ping reports whether the backend is reachable.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.do(ctx, func(ctx context.Context) error {
		return b.redis.Ping(ctx).Err()
	})
}

// Get retrieves a value by key.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	miss := false
	err := b.do(ctx, func(ctx context.Context) error {
		var err error
		data, err = b.redis.Get(ctx, key).Bytes()
		if err == redis.Nil {
			// A miss is a healthy answer and must not trip the breaker.
			miss = true
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	if miss {
		return nil, ErrBackendMiss
	}
	return data, nil
}

// SetEx stores a value with a TTL in whole seconds.
func (b *RedisBackend) SetEx(ctx context.Context, key string, value []byte, ttlSeconds int64) error {
	if ttlSeconds <= 0 {
		return fmt.Errorf("redis setex: ttl must be >= 1s, got %ds", ttlSeconds)
	}
	err := b.do(ctx, func(ctx context.Context) error {
		return b.redis.SetEx(ctx, key, value, time.Duration(ttlSeconds)*time.Second).Err()
	})
	if err != nil {
		return fmt.Errorf("redis setex: %w", err)
	}
	return nil
}

// Del removes keys.
func (b *RedisBackend) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	err := b.do(ctx, func(ctx context.Context) error {
		return b.redis.Del(ctx, keys...).Err()
	})
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// FlushAll removes every key on the server.
func (b *RedisBackend) FlushAll(ctx context.Context) error {
	err := b.do(ctx, func(ctx context.Context) error {
		return b.redis.FlushAll(ctx).Err()
	})
	if err != nil {
		return fmt.Errorf("redis flushall: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (b *RedisBackend) Close() error {
	return b.redis.Close()
}

// do runs fn through the breaker with a per-call timeout. Breaker
// rejections are reported as ErrBackendUnavailable.
func (b *RedisBackend) do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, b.cfg.OpTimeout)
		defer cancel()
		return nil, fn(opCtx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return err
}
