package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/statuscache/internal/jobs"
	"github.com/Sternrassler/statuscache/pkg/cache"
	"github.com/Sternrassler/statuscache/pkg/metrics"
	"github.com/Sternrassler/statuscache/pkg/statuspage"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// summaryConcurrency bounds provider lookups for GET /api/v1/status.
const summaryConcurrency = 8

type pinger interface {
	Ping(ctx context.Context) error
}

type server struct {
	cache        *cache.Cache[statuspage.Status]
	fetch        cache.Fetcher[statuspage.Status]
	providers    []statuspage.Provider
	scheduler    *jobs.Scheduler
	warmup       *jobs.WarmupTask[statuspage.Status]
	fetchTimeout time.Duration
	logger       zerolog.Logger
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/status/{provider}", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/cache/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/cache/invalidate", s.handleInvalidate).Methods(http.MethodPost)
	api.HandleFunc("/cache/warmup", s.handleWarmup).Methods(http.MethodPost)
	api.HandleFunc("/cache", s.handleClear).Methods(http.MethodDelete)

	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports unready while a configured backend is unreachable.
func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.cache.Backend().(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			http.Error(w, "backend unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// lookup reads a provider status through the cache, fetching on a miss.
func (s *server) lookup(ctx context.Context, p statuspage.Provider) (statuspage.Status, bool, error) {
	subject := cache.Subject{ID: p.ID, Name: p.Name}
	key := cache.SubjectKey(subject)

	if status, ok := s.cache.Get(ctx, key); ok {
		return status, true, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	status, err := s.fetch(fetchCtx, subject)
	if err != nil {
		return statuspage.Status{}, false, err
	}
	s.cache.Set(ctx, key, status)
	return status, false, nil
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["provider"]
	p, ok := statuspage.Find(s.providers, id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown provider "+id)
		return
	}

	status, hit, err := s.lookup(r.Context(), p)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", id).Msg("Status lookup failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, status)
}

type summaryEntry struct {
	statuspage.Status
	Error string `json:"error,omitempty"`
}

type summaryResponse struct {
	Operational bool           `json:"operational"`
	Providers   []summaryEntry `json:"providers"`
}

// handleSummary aggregates every provider. Failed providers are reported
// inline and make the summary non-operational.
func (s *server) handleSummary(w http.ResponseWriter, r *http.Request) {
	entries := make([]summaryEntry, len(s.providers))

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(summaryConcurrency)
	for i, p := range s.providers {
		g.Go(func() error {
			status, _, err := s.lookup(ctx, p)
			if err != nil {
				entries[i] = summaryEntry{
					Status: statuspage.Status{Provider: p.ID, Name: p.Name},
					Error:  err.Error(),
				}
				return nil
			}
			entries[i] = summaryEntry{Status: status}
			return nil
		})
	}
	_ = g.Wait()

	resp := summaryResponse{Operational: true, Providers: entries}
	for _, e := range entries {
		if e.Error != "" || !e.Operational() {
			resp.Operational = false
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type statsResponse struct {
	cache.Stats
	MemoryUsage  string `json:"memory_usage"`
	MemoryBudget string `json:"memory_budget"`
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.cache.Stats()
	budget := uint64(s.cache.Config().MaxMemoryMB) * 1024 * 1024
	writeJSON(w, http.StatusOK, statsResponse{
		Stats:        stats,
		MemoryUsage:  humanize.IBytes(uint64(stats.MemoryUsageBytes)),
		MemoryBudget: humanize.IBytes(budget),
	})
}

func (s *server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		writeError(w, http.StatusBadRequest, "pattern is required")
		return
	}
	n := s.cache.InvalidatePattern(r.Context(), pattern)
	writeJSON(w, http.StatusOK, map[string]any{
		"pattern":     pattern,
		"invalidated": n,
	})
}

func (s *server) handleWarmup(w http.ResponseWriter, r *http.Request) {
	err := s.scheduler.RunNow(r.Context(), jobs.WarmupTaskName)
	result, _ := s.warmup.LastResult()
	if errors.Is(err, context.Canceled) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	resp := map[string]any{
		"total_warmed":    result.TotalWarmed,
		"priority_warmed": result.PriorityWarmed,
		"standard_warmed": result.StandardWarmed,
		"errors":          result.Errors,
		"duration_ms":     result.Duration.Milliseconds(),
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.cache.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status_code", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
