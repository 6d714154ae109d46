package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer ("local", "remote")
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statuscache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statuscache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheSets tracks writes
	CacheSets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statuscache_sets_total",
			Help: "Total number of cache writes",
		},
	)

	// CacheDeletes tracks explicit deletions
	CacheDeletes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statuscache_deletes_total",
			Help: "Total number of cache deletions",
		},
	)

	// CacheEvictions tracks entries removed under memory pressure
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statuscache_evictions_total",
			Help: "Total number of entries evicted to stay within the memory budget",
		},
	)

	// WarmupHits tracks hits served from warmup entries
	WarmupHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statuscache_warmup_hits_total",
			Help: "Total number of hits on proactively warmed entries",
		},
	)

	// StaleServed tracks stale-while-revalidate responses
	StaleServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statuscache_stale_served_total",
			Help: "Total number of stale warmup entries served while revalidating",
		},
	)

	// MemoryBytes tracks the sum of entry sizes in the local store
	MemoryBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statuscache_memory_bytes",
			Help: "Current size of the local cache store in bytes",
		},
	)

	// Entries tracks the number of entries in the local store
	Entries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statuscache_entries",
			Help: "Current number of entries in the local cache store",
		},
	)

	// Revalidations tracks background refreshes by result ("ok", "error", "discarded")
	Revalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statuscache_revalidations_total",
			Help: "Total number of background revalidations by result",
		},
		[]string{"result"},
	)

	// WarmupSubjects tracks warmed subjects by phase and result
	WarmupSubjects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statuscache_warmup_subjects_total",
			Help: "Total number of warmup subjects processed by phase and result",
		},
		[]string{"phase", "result"},
	)

	// BackendErrors tracks remote backend failures by operation
	BackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statuscache_backend_errors_total",
			Help: "Total number of remote backend operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "flush"
	)
)
