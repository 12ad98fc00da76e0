// Package metrics provides the centralized Prometheus registry reference for
// the collector. All metrics are defined in their respective packages (cache,
// ratelimit, breaker, batch, dispatch, upstream, sink) to maintain modularity
// and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the collector.
// All metrics are automatically registered via promauto in their respective
// packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - quotefeed_cache_hits_total (Counter): Fresh cache hits
//   - quotefeed_cache_misses_total (Counter): Cache misses, including expired entries
//   - quotefeed_cache_evictions_total (Counter): Entries dropped by LRU capacity pressure
//   - quotefeed_cache_expired_total (Counter): Entries dropped for passing their TTL
//   - quotefeed_cache_entries (Gauge): Current entry count
//
// Rate Limit Metrics (pkg/ratelimit):
//   - quotefeed_ratelimit_tokens (Gauge): Current token balance
//   - quotefeed_ratelimit_backoff_factor (Gauge): Current refill penalty (1.0 = nominal)
//   - quotefeed_ratelimit_granted_total{priority} (Counter): Grants by priority
//   - quotefeed_ratelimit_denied_total{priority} (Counter): Denials by priority
//   - quotefeed_ratelimit_violations_total (Counter): Upstream rate-limit-exceeded signals
//
// Circuit Breaker Metrics (pkg/breaker):
//   - quotefeed_breaker_state{state} (Gauge): One-hot current state
//   - quotefeed_breaker_transitions_total{from,to} (Counter): State transitions
//   - quotefeed_breaker_short_circuits_total (Counter): Calls denied while open
//
// Batch Metrics (pkg/batch):
//   - quotefeed_batches_released_total{trigger} (Counter): Releases by trigger (size, timeout, drain)
//   - quotefeed_batch_size_keys (Histogram): Distinct keys per released batch
//   - quotefeed_batch_deduped_keys_total (Counter): Requests collapsed onto an enrolled key
//
// Dispatch Metrics (pkg/dispatch):
//   - quotefeed_dispatch_fetches_total{outcome} (Counter): Logical fetches by outcome
//   - quotefeed_dispatch_fetch_duration_seconds (Histogram): Enqueue-to-resolution latency
//   - quotefeed_dispatch_batches_total{outcome} (Counter): Batch executions by outcome
//   - quotefeed_dispatch_batches_requeued_total (Counter): Limiter-denied deferrals
//   - quotefeed_dispatch_retries_total{kind} (Counter): Transport retries by error kind
//   - quotefeed_dispatch_retry_backoff_seconds (Histogram): Backoff slept before retries
//   - quotefeed_dispatch_inflight_batches (Gauge): Batches currently executing
//
// Upstream Metrics (pkg/upstream):
//   - quotefeed_upstream_requests_total{status} (Counter): Physical calls by HTTP status
//   - quotefeed_upstream_request_duration_seconds (Histogram): Physical call latency
//   - quotefeed_upstream_batch_keys (Histogram): Keys per physical call
//
// Sink Metrics (pkg/sink):
//   - quotefeed_sink_writes_total{sink,outcome} (Counter): Sink writes by type and outcome
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(quotefeed_cache_hits_total[5m])) /
//   (sum(rate(quotefeed_cache_hits_total[5m])) + sum(rate(quotefeed_cache_misses_total[5m])))
//
//   # Fetch Error Rate
//   sum(rate(quotefeed_dispatch_fetches_total{outcome!~"success|cache_hit"}[5m]))
//
//   # Throttling Active
//   quotefeed_ratelimit_backoff_factor > 1
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(quotefeed_dispatch_fetch_duration_seconds_bucket[5m]))
//
//   # Circuit Open
//   quotefeed_breaker_state{state="open"} == 1
