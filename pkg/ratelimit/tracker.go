package ratelimit

import (
	"context"
	"math"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Prometheus metrics for rate limit tracking.
var (
	rateLimitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statuscache_rate_limits_total",
		Help: "Total rate limits announced by status pages, by provider",
	}, []string{"provider"})

	rateLimitBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statuscache_rate_limit_blocks_total",
		Help: "Total requests blocked while a provider was rate limited",
	}, []string{"provider"})
)

// Store shares state between instances. It is satisfied by cache.Backend.
//
// When the store is the cache backend, cache.Cache.Clear flushes it and
// with it every shared limit. Each tracker keeps gating on the limits it
// recorded itself; other instances stop seeing them until the provider
// answers 429 again.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetEx(ctx context.Context, key string, value []byte, ttlSeconds int64) error
	Del(ctx context.Context, keys ...string) error
}

// Tracker records provider rate limits and gates requests.
//
// Store failures never block a request: the tracker falls back to what
// this process has seen.
type Tracker struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	states map[string]State
}

// NewTracker creates a tracker. store may be nil for process-local state.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger,
		now:    time.Now,
		states: make(map[string]State),
	}
}

// UpdateFromHeaders records a rate limit for provider from the Retry-After
// header of a 429 response.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, provider string, headers http.Header) State {
	now := t.now()
	wait, ok := ParseRetryAfter(headers.Get("Retry-After"), now)
	if !ok {
		wait = DefaultRetryAfter
	}

	state := State{
		Provider:   provider,
		ResetAt:    now.Add(wait),
		LastUpdate: now,
	}

	t.mu.Lock()
	t.states[provider] = state
	t.mu.Unlock()

	rateLimitsTotal.WithLabelValues(provider).Inc()

	if t.store != nil && wait > 0 {
		data, err := json.Marshal(state)
		if err == nil {
			ttl := int64(math.Ceil(wait.Seconds()))
			err = t.store.SetEx(ctx, KeyPrefix+provider, data, ttl)
		}
		if err != nil {
			t.logger.Warn().Err(err).Str("provider", provider).Msg("Failed to share rate limit state")
		}
	}

	t.logger.Warn().
		Str("provider", provider).
		Dur("retry_after", wait).
		Time("reset_at", state.ResetAt).
		Msg("Provider rate limited")

	return state
}

// ShouldAllowRequest reports whether a request to provider may be sent,
// and if not, how long until it may.
func (t *Tracker) ShouldAllowRequest(ctx context.Context, provider string) (time.Duration, bool) {
	now := t.now()

	t.mu.Lock()
	state, ok := t.states[provider]
	if ok && !state.Blocked(now) {
		delete(t.states, provider)
		ok = false
	}
	t.mu.Unlock()

	if !ok && t.store != nil {
		state, ok = t.loadShared(ctx, provider, now)
	}

	if !ok {
		return 0, true
	}

	rateLimitBlocksTotal.WithLabelValues(provider).Inc()
	wait := state.TimeUntilReset(now)
	t.logger.Debug().
		Str("provider", provider).
		Dur("wait", wait).
		Msg("Request blocked by rate limit")
	return wait, false
}

// loadShared reads another instance's state for provider and adopts it if
// it still blocks.
func (t *Tracker) loadShared(ctx context.Context, provider string, now time.Time) (State, bool) {
	data, err := t.store.Get(ctx, KeyPrefix+provider)
	if err != nil {
		return State{}, false
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		t.logger.Debug().Err(err).Str("provider", provider).Msg("Ignoring undecodable rate limit state")
		return State{}, false
	}
	if !state.Blocked(now) {
		return State{}, false
	}

	t.mu.Lock()
	t.states[provider] = state
	t.mu.Unlock()
	return state, true
}

// Reset clears a recorded limit after the provider answered normally.
func (t *Tracker) Reset(ctx context.Context, provider string) {
	t.mu.Lock()
	_, ok := t.states[provider]
	delete(t.states, provider)
	t.mu.Unlock()

	if !ok || t.store == nil {
		return
	}
	if err := t.store.Del(ctx, KeyPrefix+provider); err != nil {
		t.logger.Warn().Err(err).Str("provider", provider).Msg("Failed to clear shared rate limit state")
	}
}

// GetState returns the locally known state of provider.
func (t *Tracker) GetState(provider string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[provider]
	return s, ok
}
