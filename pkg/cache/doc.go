// Package cache provides the status cache that sits between expensive
// per-provider status fetches and everything that reads them.
//
// The cache implements the following features:
//
// - Bounded memory with score-ordered eviction down to 80% of the budget
// - Per-entry TTL with lazy expiry on read and an optional janitor
// - Stale-while-revalidate for warmup entries, single-flight per key
// - Flat and priority warmup with bounded concurrency and progress reporting
// - Batched deletion and glob pattern invalidation
// - Optional Redis backend behind a circuit breaker
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	c, err := cache.New[statuspage.Status](cache.DefaultConfig())
//	if err != nil {
//		return err // *cache.ConfigError
//	}
//	defer c.Close()
//
//	status, ok := c.Get(ctx, "status:openai")
//	if !ok {
//		status, err = fetch(ctx, "openai")
//		if err != nil {
//			return err
//		}
//		c.Set(ctx, "status:openai", status)
//	}
//
// # Warmup
//
//	result, err := c.WarmupPriority(ctx, subjects, []string{"openai"}, fetcher,
//		cache.WithProgress(func(p cache.Progress) {
//			log.Printf("%d/%d %s (%s)", p.Completed, p.Total, p.Subject, p.Phase)
//		}),
//	)
//
// Fetcher failures never abort a warmup; they are counted in
// WarmupResult.Errors. The returned error is only set when ctx is cancelled.
//
// # Stale-While-Revalidate
//
// A warmup entry read within Config.StaleWhileRevalidate of its expiry is
// still returned, and one background refresh is started for its key using
// the Fetcher that warmed it. Further stale reads of the same key while the
// refresh runs do not start another one. The refreshed value is dropped if
// the entry was replaced or removed while the refresh ran.
//
// # Remote Backend
//
// When a Backend is configured, Get consults it first and remote hits are
// not copied into the local store, though a stale local warmup entry for
// the key is still revalidated. Writes go to both. Remote TTLs are whole
// seconds: the local TTL is truncated, and writes with a TTL under one
// second stay local. Backend failures are logged and the cache falls back to
// the local store; they are never returned to callers.
//
// # Metrics
//
// The cache exports Prometheus metrics:
//
//   - statuscache_hits_total{layer} - Cache hits by layer (local, remote)
//   - statuscache_misses_total - Cache misses
//   - statuscache_sets_total / statuscache_deletes_total - Writes and deletions
//   - statuscache_evictions_total - Entries evicted under memory pressure
//   - statuscache_warmup_hits_total / statuscache_stale_served_total
//   - statuscache_memory_bytes / statuscache_entries - Local store size
//   - statuscache_revalidations_total{result} - Background refreshes
//   - statuscache_warmup_subjects_total{phase,result} - Warmup fetches
//   - statuscache_backend_errors_total{operation} - Backend failures
package cache
