package cache

import (
	"context"
	"time"
)

// entryState is the freshness of an entry at read time.
type entryState int

const (
	stateFresh entryState = iota
	stateStale
	stateExpired
)

func (s entryState) String() string {
	switch s {
	case stateFresh:
		return "fresh"
	case stateStale:
		return "stale"
	default:
		return "expired"
	}
}

// refreshFunc reproduces the value of an entry. Warmup attaches one built
// from the Fetcher and Subject that produced the value.
type refreshFunc[T any] func(ctx context.Context) (T, error)

// Entry is a cached value with its bookkeeping.
type Entry[T any] struct {
	// Value is the cached payload. Reference types are shared with the
	// caller and must be treated as read-only.
	Value T

	// CreatedAt is the time of the last write.
	CreatedAt time.Time

	// TTL is the validity duration from CreatedAt.
	TTL time.Duration

	// HitCount is incremented on every successful read.
	HitCount int64

	// SizeBytes is the encoded size computed at write time.
	SizeBytes int64

	// Warmup marks entries written by the warmup scheduler. Only these are
	// served stale and revalidated in the background.
	Warmup bool

	refresh refreshFunc[T]
}

// ExpiresAt returns when the entry stops being servable.
func (e *Entry[T]) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// IsExpired returns true if the entry has expired at now.
func (e *Entry[T]) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

// state classifies the entry against the stale-while-revalidate window.
func (e *Entry[T]) state(now time.Time, swr time.Duration) entryState {
	expires := e.ExpiresAt()
	switch {
	case !now.Before(expires):
		return stateExpired
	case !now.Before(expires.Add(-swr)):
		return stateStale
	default:
		return stateFresh
	}
}

// score ranks entries for eviction; lower is evicted first.
func (e *Entry[T]) score(hitWeight time.Duration) int64 {
	return e.CreatedAt.UnixNano() + e.HitCount*int64(hitWeight)
}
