//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestIntegration_SharedBackend(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	ctx := context.Background()
	breaker := DefaultBreakerConfig()
	breaker.OpTimeout = time.Second

	// Two instances sharing one Redis, as in a multi-replica deployment.
	writer, err := New[string](DefaultConfig(), WithLogger(zerolog.Nop()), WithBackend(NewRedisBackend(redisClient, breaker)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer writer.Close()

	reader, err := New[string](DefaultConfig(), WithLogger(zerolog.Nop()), WithBackend(NewRedisBackend(redisClient, breaker)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer reader.Close()

	writer.Set(ctx, "status:openai", "operational", 10*time.Second)

	got, ok := reader.Get(ctx, "status:openai")
	if !ok || got != "operational" {
		t.Fatalf("reader.Get() = %q, %v, want value written by the other instance", got, ok)
	}
	if reader.Size() != 0 {
		t.Error("remote hit was copied into the reader's local store")
	}

	ttl, err := redisClient.TTL(ctx, "status:openai").Result()
	if err != nil {
		t.Fatalf("TTL error = %v", err)
	}
	if ttl <= 0 || ttl > 10*time.Second {
		t.Errorf("remote TTL = %s, want (0, 10s]", ttl)
	}

	writer.Delete(ctx, "status:openai")
	if _, ok := reader.Get(ctx, "status:openai"); ok {
		t.Error("reader still sees the value after Delete")
	}
}

func TestIntegration_CompressedPayload(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.CompressionThreshold = 128

	c, err := New[[]string](cfg, WithLogger(zerolog.Nop()), WithBackend(NewRedisBackend(redisClient, DefaultBreakerConfig())))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	value := make([]string, 200)
	for i := range value {
		value[i] = "All Systems Operational"
	}
	c.Set(ctx, "summary:all", value, time.Minute)
	c.Clear(ctx)

	// Clear flushed the backend too, so write again and read through it.
	c.Set(ctx, "summary:all", value, time.Minute)
	raw, err := redisClient.Get(ctx, "summary:all").Bytes()
	if err != nil {
		t.Fatalf("redis GET error = %v", err)
	}
	if raw[0] != payloadS2 {
		t.Errorf("payload header = 0x%02x, want s2", raw[0])
	}

	got, ok := c.Get(ctx, "summary:all")
	if !ok || len(got) != len(value) {
		t.Errorf("Get() returned %d items, %v", len(got), ok)
	}
}

func TestIntegration_ServerRestart(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)

	ctx := context.Background()
	c, err := New[string](DefaultConfig(), WithLogger(zerolog.Nop()), WithBackend(NewRedisBackend(redisClient, DefaultBreakerConfig())))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	c.Set(ctx, "status:a", "v", time.Minute)
	cleanup()

	// Backend gone: reads keep working from the local store.
	for range 10 {
		if got, ok := c.Get(ctx, "status:a"); !ok || got != "v" {
			t.Fatalf("Get() = %q, %v, want local fallback", got, ok)
		}
	}
}
