// Package metrics provides the centralized Prometheus metrics registry
// for pokefetch. All metrics are defined in their respective packages
// (fetch, pool, cache, ratelimit) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by pokefetch.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/fetch):
//   - pokefetch_requests_total{status} (Counter): Total requests by HTTP status
//   - pokefetch_request_duration_seconds (Histogram): Request duration
//   - pokefetch_errors_total{class} (Counter): Errors by class
//     (not_found, rate_limit, server, client, network, malformed, storage)
//
// Retry Metrics (pkg/fetch):
//   - pokefetch_retries_total{error_class} (Counter): Retry attempts by error class
//   - pokefetch_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - pokefetch_outcomes_total{result} (Counter): Terminal outcomes by result
//     (success, invalid_identifier, not_found, network_unavailable,
//     retries_exhausted, cancelled, internal_error)
//
// Pool Metrics (pkg/pool):
//   - pokefetch_pool_items_inflight (Gauge): Work items currently being fetched
//   - pokefetch_pool_batch_duration_seconds (Histogram): Wall time of complete batch runs
//
// Cache Metrics (pkg/cache):
//   - pokefetch_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - pokefetch_cache_misses_total (Counter): Cache misses
//   - pokefetch_304_responses_total (Counter): 304 Not Modified responses
//   - pokefetch_conditional_requests_total (Counter): Conditional requests sent with If-None-Match
//   - pokefetch_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pokefetch_rate_limit_cooldowns_total (Counter): Pool-wide cooldowns triggered by 429s
//   - pokefetch_rate_limit_waits_total (Counter): Worker waits spent inside a cooldown
//   - pokefetch_rate_limit_cooldown_seconds (Histogram): Cooldown hold durations
//
// Example Prometheus Queries:
//
//   # Success Rate
//   rate(pokefetch_outcomes_total{result="success"}[5m]) /
//   sum(rate(pokefetch_outcomes_total[5m]))
//
//   # Cache Hit Rate
//   sum(rate(pokefetch_cache_hits_total[5m])) /
//   (sum(rate(pokefetch_cache_hits_total[5m])) + sum(rate(pokefetch_cache_misses_total[5m])))
//
//   # Request Error Rate
//   rate(pokefetch_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(pokefetch_request_duration_seconds_bucket[5m]))
