// Package ratelimit tracks rate limits announced by status pages and gates
// requests to a provider until its limit resets. State is kept per process
// and can be shared between instances through a Store.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// KeyPrefix prefixes shared state keys: "ratelimit:<provider>".
const KeyPrefix = "ratelimit:"

const (
	// DefaultRetryAfter applies when a 429 carries no usable Retry-After.
	DefaultRetryAfter = 60 * time.Second

	// MaxRetryAfter caps announced waits so one bad header cannot silence
	// a provider for days.
	MaxRetryAfter = time.Hour
)

// State is the rate limit state of one provider.
type State struct {
	Provider string `json:"provider"`

	// ResetAt is when requests may resume.
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the limit was recorded.
	LastUpdate time.Time `json:"last_update"`
}

// Blocked reports whether requests must wait at now.
func (s State) Blocked(now time.Time) bool {
	return now.Before(s.ResetAt)
}

// TimeUntilReset returns the remaining wait, or 0 once reset.
func (s State) TimeUntilReset(now time.Time) time.Duration {
	return max(s.ResetAt.Sub(now), 0)
}

// ParseRetryAfter parses a Retry-After value given either as delay seconds
// or as an HTTP date. The result is clamped to [0, MaxRetryAfter].
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	var d time.Duration
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		d = time.Duration(min(secs, int64(MaxRetryAfter/time.Second))) * time.Second
	} else if at, err := http.ParseTime(value); err == nil {
		d = max(at.Sub(now), 0)
	} else {
		return 0, false
	}

	return min(d, MaxRetryAfter), true
}
