package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/statuscache/internal/testutil"
	"github.com/Sternrassler/statuscache/pkg/config"
	"github.com/Sternrassler/statuscache/pkg/statuspage"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Cache.CleanupIntervalMs = 0
	cfg.Warmup.Schedule = ""
	cfg.Fetch.MaxAttempts = 1
	cfg.Fetch.InitialBackoffMs = 1
	cfg.Fetch.TimeoutMs = 2000
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, providers []statuspage.Provider) (*app, *mux.Router) {
	t.Helper()
	a, err := newApp(cfg, providers, zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	t.Cleanup(a.close)
	return a, a.server.routes()
}

func do(t *testing.T, r http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	_, r := newTestApp(t, testConfig(), nil)

	rec := do(t, r, http.MethodGet, "/health")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("GET /health = %d %q, want 200 OK", rec.Code, rec.Body.String())
	}
}

func TestReady(t *testing.T) {
	t.Run("local only", func(t *testing.T) {
		_, r := newTestApp(t, testConfig(), nil)
		if rec := do(t, r, http.MethodGet, "/ready"); rec.Code != http.StatusOK {
			t.Errorf("GET /ready = %d, want 200", rec.Code)
		}
	})

	t.Run("backend down", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig()
		cfg.Cache.RemoteURL = "redis://" + mr.Addr()
		_, r := newTestApp(t, cfg, nil)

		if rec := do(t, r, http.MethodGet, "/ready"); rec.Code != http.StatusOK {
			t.Fatalf("GET /ready = %d, want 200", rec.Code)
		}

		mr.Close()
		if rec := do(t, r, http.MethodGet, "/ready"); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET /ready after backend loss = %d, want 503", rec.Code)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	_, r := newTestApp(t, testConfig(), nil)

	rec := do(t, r, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "statuscache_") {
		t.Error("metrics output has no statuscache_ series")
	}
}

func TestStatus_CacheAside(t *testing.T) {
	mock := testutil.NewMockStatusPage()
	defer mock.Close()
	mock.SetResponse(testutil.NewStatusResponse("none", "All Systems Operational"))

	providers := []statuspage.Provider{{ID: "openai", Name: "OpenAI", URL: mock.URL()}}
	_, r := newTestApp(t, testConfig(), providers)

	first := do(t, r, http.MethodGet, "/api/v1/status/openai")
	if first.Code != http.StatusOK {
		t.Fatalf("first GET = %d, body %s", first.Code, first.Body.String())
	}
	if got := first.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("first X-Cache = %q, want MISS", got)
	}

	second := do(t, r, http.MethodGet, "/api/v1/status/openai")
	if got := second.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("second X-Cache = %q, want HIT", got)
	}

	var status statuspage.Status
	decode(t, second, &status)
	if status.Provider != "openai" || status.Indicator != statuspage.IndicatorNone {
		t.Errorf("status = %+v", status)
	}
	if n := mock.RequestCount(); n != 1 {
		t.Errorf("upstream requests = %d, want 1", n)
	}
}

func TestStatus_UnknownProvider(t *testing.T) {
	_, r := newTestApp(t, testConfig(), nil)

	if rec := do(t, r, http.MethodGet, "/api/v1/status/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("GET unknown provider = %d, want 404", rec.Code)
	}
}

func TestStatus_UpstreamFailure(t *testing.T) {
	mock := testutil.NewMockStatusPage()
	defer mock.Close()
	mock.SetResponse(testutil.NewServerErrorResponse())

	providers := []statuspage.Provider{{ID: "github", URL: mock.URL()}}
	a, r := newTestApp(t, testConfig(), providers)

	rec := do(t, r, http.MethodGet, "/api/v1/status/github")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("GET failing provider = %d, want 502", rec.Code)
	}
	if a.cache.Size() != 0 {
		t.Error("failed fetch was cached")
	}
}

func TestSummary(t *testing.T) {
	healthy := testutil.NewMockStatusPage()
	defer healthy.Close()
	healthy.SetResponse(testutil.NewStatusResponse("none", "All Systems Operational"))

	degraded := testutil.NewMockStatusPage()
	defer degraded.Close()
	degraded.SetResponse(testutil.NewStatusResponse("major", "Partial System Outage"))

	broken := testutil.NewMockStatusPage()
	defer broken.Close()
	broken.SetResponse(testutil.NewNotFoundResponse())

	providers := []statuspage.Provider{
		{ID: "a", URL: healthy.URL()},
		{ID: "b", URL: degraded.URL()},
		{ID: "c", URL: broken.URL()},
	}
	_, r := newTestApp(t, testConfig(), providers)

	rec := do(t, r, http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/status = %d", rec.Code)
	}

	var got summaryResponse
	decode(t, rec, &got)
	if got.Operational {
		t.Error("summary operational with a degraded provider")
	}

	type row struct {
		Provider  string
		Indicator statuspage.Indicator
		Failed    bool
	}
	var rows []row
	for _, e := range got.Providers {
		rows = append(rows, row{e.Provider, e.Indicator, e.Error != ""})
	}
	want := []row{
		{"a", statuspage.IndicatorNone, false},
		{"b", statuspage.IndicatorMajor, false},
		{"c", "", true},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestWarmupEndpoint(t *testing.T) {
	mock := testutil.NewMockStatusPage()
	defer mock.Close()
	mock.SetResponse(testutil.NewStatusResponse("none", "All Systems Operational"))

	providers := []statuspage.Provider{
		{ID: "openai", URL: mock.URL(), Priority: true},
		{ID: "github", URL: mock.URL()},
	}
	_, r := newTestApp(t, testConfig(), providers)

	rec := do(t, r, http.MethodPost, "/api/v1/cache/warmup")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST warmup = %d, body %s", rec.Code, rec.Body.String())
	}

	var got map[string]any
	decode(t, rec, &got)
	if got["total_warmed"] != float64(2) || got["priority_warmed"] != float64(1) {
		t.Errorf("warmup result = %v", got)
	}

	status := do(t, r, http.MethodGet, "/api/v1/status/github")
	if h := status.Header().Get("X-Cache"); h != "HIT" {
		t.Errorf("X-Cache after warmup = %q, want HIT", h)
	}
}

func TestInvalidate(t *testing.T) {
	a, r := newTestApp(t, testConfig(), nil)
	ctx := t.Context()
	a.cache.Set(ctx, "status:openai", statuspage.Status{Provider: "openai"})
	a.cache.Set(ctx, "status:github", statuspage.Status{Provider: "github"})
	a.cache.Set(ctx, "summary:all", statuspage.Status{})

	if rec := do(t, r, http.MethodPost, "/api/v1/cache/invalidate"); rec.Code != http.StatusBadRequest {
		t.Errorf("POST invalidate without pattern = %d, want 400", rec.Code)
	}

	rec := do(t, r, http.MethodPost, "/api/v1/cache/invalidate?pattern=status:*")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST invalidate = %d", rec.Code)
	}
	var got struct {
		Invalidated int `json:"invalidated"`
	}
	decode(t, rec, &got)
	if got.Invalidated != 2 {
		t.Errorf("invalidated = %d, want 2", got.Invalidated)
	}
	if a.cache.Size() != 1 {
		t.Errorf("Size() = %d, want 1", a.cache.Size())
	}
}

func TestStatsAndClear(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.MaxMemoryMB = 8
	a, r := newTestApp(t, cfg, nil)
	a.cache.Set(t.Context(), "status:openai", statuspage.Status{Provider: "openai"})

	var stats statsResponse
	decode(t, do(t, r, http.MethodGet, "/api/v1/cache/stats"), &stats)
	if stats.EntryCount != 1 || stats.Sets != 1 {
		t.Errorf("stats = %+v", stats.Stats)
	}
	if stats.MemoryBudget != "8.0 MiB" {
		t.Errorf("memory_budget = %q, want 8.0 MiB", stats.MemoryBudget)
	}

	if rec := do(t, r, http.MethodDelete, "/api/v1/cache"); rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE /api/v1/cache = %d, want 204", rec.Code)
	}
	if a.cache.Size() != 0 {
		t.Errorf("Size() after clear = %d, want 0", a.cache.Size())
	}
	if _, ok := a.cache.Inspect("status:openai"); ok {
		t.Error("entry survived clear")
	}
}
