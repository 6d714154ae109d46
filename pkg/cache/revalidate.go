package cache

import (
	"context"
	"time"
)

// revalidateLocked opens a ticket for key and schedules a background
// refresh. At most one ticket per key exists; a second stale read while
// one is open does nothing.
func (c *Cache[T]) revalidateLocked(key string, e *Entry[T]) {
	if _, inflight := c.tickets[key]; inflight {
		return
	}
	if c.closed {
		return
	}

	refresh := e.refresh
	if refresh == nil {
		c.logger.Debug().Str("key", key).Msg("Stale entry has no refresher, serving until expiry")
		return
	}

	c.tickets[key] = e

	// Started under mu so Close cannot begin waiting before the runner
	// has accounted for this goroutine.
	c.runner.GoWithContext(c.ctx, "revalidate:"+key, func(ctx context.Context) {
		c.runRevalidation(ctx, key, e, refresh)
	})
}

// runRevalidation refreshes the entry origin. The result is stored only if
// origin is still the entry under key; any Set, Delete, invalidation,
// eviction or Clear in the meantime discards it.
func (c *Cache[T]) runRevalidation(ctx context.Context, key string, origin *Entry[T], refresh refreshFunc[T]) {
	defer c.closeTicket(key, origin)

	start := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.RevalidateTimeout)
	defer cancel()

	value, err := refresh(fetchCtx)
	if err != nil {
		Revalidations.WithLabelValues("error").Inc()
		c.logger.Warn().
			Err(&FetchError{Subject: key, Err: err}).
			Str("key", key).
			Dur("duration", time.Since(start)).
			Msg("Background revalidation failed, keeping stale entry")
		return
	}

	data, encErr := encodeValue(value)
	size := int64(len(data))
	if encErr != nil {
		size = fallbackSize(value)
	}

	c.mu.Lock()
	if c.entries[key] != origin {
		c.mu.Unlock()
		Revalidations.WithLabelValues("discarded").Inc()
		c.logger.Debug().Str("key", key).Msg("Entry replaced or removed during revalidation, discarding result")
		return
	}
	c.storeLocked(key, value, c.cfg.WarmupTTL, size, true, refresh)
	c.mu.Unlock()

	if encErr == nil {
		c.setRemote(ctx, key, data, c.cfg.WarmupTTL)
	}

	Revalidations.WithLabelValues("ok").Inc()
	c.logger.Debug().
		Str("key", key).
		Dur("duration", time.Since(start)).
		Msg("Background revalidation complete")
}

func (c *Cache[T]) closeTicket(key string, origin *Entry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.tickets[key]; ok && e == origin {
		delete(c.tickets, key)
	}
}

// revalidating reports whether a refresh for key is in flight.
func (c *Cache[T]) revalidating(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.tickets[key]
	return ok
}
