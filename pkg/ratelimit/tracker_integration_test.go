//go:build integration

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/statuscache/pkg/cache"
)

// setupRedis starts a Redis container and returns a backend on it.
func setupRedis(t *testing.T) *cache.RedisBackend {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	backend := cache.NewRedisBackend(redis.NewClient(&redis.Options{Addr: endpoint}), cache.DefaultBreakerConfig())
	t.Cleanup(func() { _ = backend.Close() })

	if err := backend.Ping(ctx); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}
	return backend
}

func TestTracker_Integration_SharedLimitExpires(t *testing.T) {
	backend := setupRedis(t)
	ctx := context.Background()

	first := NewTracker(backend, zerolog.Nop())
	second := NewTracker(backend, zerolog.Nop())

	first.UpdateFromHeaders(ctx, "openai", retryAfter("1"))

	if _, ok := second.ShouldAllowRequest(ctx, "openai"); ok {
		t.Fatal("shared limit not visible to second tracker")
	}

	time.Sleep(1500 * time.Millisecond)

	if _, ok := NewTracker(backend, zerolog.Nop()).ShouldAllowRequest(ctx, "openai"); !ok {
		t.Error("shared limit outlived its TTL")
	}
}
