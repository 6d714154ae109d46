// Package metrics exposes the Prometheus registry used by statuscache.
// Metrics are defined in their respective packages (cache, statuspage,
// ratelimit, jobs) to maintain modularity and avoid circular dependencies.
//
// This package provides the scrape handler and documents all available
// metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by statuscache.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the counterpart of Registry used for scraping.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving the metrics in Gatherer.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - statuscache_hits_total{layer} (Counter): Cache hits by layer (local, remote)
//   - statuscache_misses_total (Counter): Cache misses
//   - statuscache_sets_total (Counter): Cache writes
//   - statuscache_deletes_total (Counter): Cache deletions
//   - statuscache_evictions_total (Counter): Entries evicted under memory pressure
//   - statuscache_warmup_hits_total (Counter): Hits on warmup entries
//   - statuscache_stale_served_total (Counter): Stale warmup entries served
//   - statuscache_memory_bytes (Gauge): Sum of local entry sizes
//   - statuscache_entries (Gauge): Local entry count
//   - statuscache_revalidations_total{result} (Counter): Background refreshes (ok, error, discarded)
//   - statuscache_warmup_subjects_total{phase, result} (Counter): Warmup fetches
//   - statuscache_backend_errors_total{operation} (Counter): Remote backend failures
//
// Fetch Metrics (pkg/statuspage):
//   - statuscache_fetch_requests_total{provider, status} (Counter): Status page requests
//   - statuscache_fetch_duration_seconds{provider} (Histogram): Status page request duration
//   - statuscache_fetch_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - statuscache_fetch_retries_total{error_class} (Counter): Retry attempts by error class
//   - statuscache_fetch_retry_exhausted_total{error_class} (Counter): Fetches that ran out of attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - statuscache_rate_limits_total{provider} (Counter): 429 responses recorded
//   - statuscache_rate_limit_blocks_total{provider} (Counter): Fetches skipped while rate limited
//
// Job Metrics (internal/jobs):
//   - statuscache_job_runs_total{job, result} (Counter): Scheduled job runs
//   - statuscache_job_duration_seconds{job} (Histogram): Scheduled job duration
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(statuscache_hits_total[5m])) /
//   (sum(rate(statuscache_hits_total[5m])) + sum(rate(statuscache_misses_total[5m])))
//
//   # Eviction Pressure
//   rate(statuscache_evictions_total[5m]) > 0
//
//   # Failing Providers
//   sum by (provider) (rate(statuscache_fetch_requests_total{status!="200"}[5m]))
//
//   # P95 Status Page Latency
//   histogram_quantile(0.95, rate(statuscache_fetch_duration_seconds_bucket[5m]))
