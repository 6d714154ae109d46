package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/Sternrassler/statuscache/pkg/cache"
	"github.com/Sternrassler/statuscache/pkg/logging"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}

	want := cache.DefaultConfig()
	want.CleanupInterval = time.Minute
	if diff := cmp.Diff(want, cfg.CacheConfig()); diff != "" {
		t.Errorf("CacheConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Load(\"\") mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statuscache.yaml")
	content := `
cache:
  max_memory_mb: 64
  remote_url: redis://localhost:6379/0
server:
  addr: ":9090"
warmup:
  schedule: "@every 5m"
  priority_ids: [openai, github]
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Cache.MaxMemoryMB != 64 {
		t.Errorf("MaxMemoryMB = %d, want 64", cfg.Cache.MaxMemoryMB)
	}
	if cfg.Cache.RemoteURL != "redis://localhost:6379/0" {
		t.Errorf("RemoteURL = %q", cfg.Cache.RemoteURL)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
	if cfg.Warmup.Schedule != "@every 5m" {
		t.Errorf("Schedule = %q", cfg.Warmup.Schedule)
	}
	if diff := cmp.Diff([]string{"openai", "github"}, cfg.Warmup.PriorityIDs); diff != "" {
		t.Errorf("PriorityIDs mismatch (-want +got):\n%s", diff)
	}
	if cfg.LoggingConfig().Level != logging.LevelDebug {
		t.Errorf("log level = %q, want debug", cfg.LoggingConfig().Level)
	}

	// Untouched keys keep their defaults.
	if cfg.Cache.DefaultTTLMs != Default().Cache.DefaultTTLMs {
		t.Errorf("DefaultTTLMs = %d, want default", cfg.Cache.DefaultTTLMs)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statuscache.yaml")
	if err := os.WriteFile(path, []byte("cache:\n  max_memory_mb: 64\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("STATUSCACHE_CACHE_MAX_MEMORY_MB", "128")
	t.Setenv("STATUSCACHE_CACHE_STALE_WHILE_REVALIDATE_MS", "5000")
	t.Setenv("STATUSCACHE_FETCH_USER_AGENT", "statuscache-test/1.0")
	t.Setenv("STATUSCACHE_LOG_PRETTY", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Cache.MaxMemoryMB != 128 {
		t.Errorf("MaxMemoryMB = %d, want env value 128", cfg.Cache.MaxMemoryMB)
	}
	if got := cfg.CacheConfig().StaleWhileRevalidate; got != 5*time.Second {
		t.Errorf("StaleWhileRevalidate = %s, want 5s", got)
	}
	if cfg.FetchConfig().UserAgent != "statuscache-test/1.0" {
		t.Errorf("UserAgent = %q", cfg.FetchConfig().UserAgent)
	}
	if !cfg.Log.Pretty {
		t.Error("Pretty = false, want env value true")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantCache bool
	}{
		{"zero memory", "cache:\n  max_memory_mb: 0\n", true},
		{"negative swr", "cache:\n  stale_while_revalidate_ms: -1\n", true},
		{"swr covers warmup ttl", "cache:\n  warmup_ttl_ms: 60000\n  stale_while_revalidate_ms: 60000\n", true},
		{"bad log level", "log:\n  level: verbose\n", false},
		{"empty addr", "server:\n  addr: \"\"\n", false},
		{"no attempts", "fetch:\n  max_attempts: 0\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "statuscache.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}

			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if got := errors.Is(err, cache.ErrInvalidConfig); got != tt.wantCache {
				t.Errorf("errors.Is(err, cache.ErrInvalidConfig) = %v, want %v (err = %v)", got, tt.wantCache, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestFetchConfig(t *testing.T) {
	cfg := Default()
	cfg.Fetch.TimeoutMs = 2500
	cfg.Fetch.MaxAttempts = 5
	cfg.Fetch.InitialBackoffMs = 100

	fc := cfg.FetchConfig()
	if fc.Timeout != 2500*time.Millisecond {
		t.Errorf("Timeout = %s", fc.Timeout)
	}
	if fc.Retry.MaxAttempts != 5 || fc.Retry.InitialBackoff != 100*time.Millisecond {
		t.Errorf("Retry = %+v", fc.Retry)
	}
}

func TestServerConfig_Durations(t *testing.T) {
	s := ServerConfig{ReadTimeoutMs: 1500, WriteTimeoutMs: 2000, ShutdownTimeoutMs: 250}
	if s.ReadTimeout() != 1500*time.Millisecond || s.WriteTimeout() != 2*time.Second || s.ShutdownTimeout() != 250*time.Millisecond {
		t.Errorf("durations = %s %s %s", s.ReadTimeout(), s.WriteTimeout(), s.ShutdownTimeout())
	}
}
