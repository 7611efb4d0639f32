// Package metrics documents the Prometheus metrics of the forum client and
// exposes them over HTTP. Metrics are defined with promauto in the package
// that owns them (client, cache, ratelimit, session) to avoid import cycles.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the forum client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry Handler serves.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Names lists every metric family the client registers.
var Names = []string{
	"forum_rate_limit_wait_seconds",
	"forum_rate_limit_tokens",
	"forum_rate_limit_cooldowns_total",
	"forum_rate_limit_cooldown_seconds",
	"forum_cache_hits_total",
	"forum_cache_misses_total",
	"forum_cache_size_bytes",
	"forum_cache_not_modified_total",
	"forum_cache_errors_total",
	"forum_session_transitions_total",
	"forum_requests_total",
	"forum_request_duration_seconds",
	"forum_errors_total",
	"forum_retries_total",
	"forum_retry_backoff_seconds",
	"forum_retry_exhausted_total",
	"forum_challenges_total",
	"forum_tool_calls_total",
	"forum_tool_call_duration_seconds",
}

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - forum_rate_limit_wait_seconds (Histogram): Time spent waiting for a token
//   - forum_rate_limit_tokens (Gauge): Tokens left in the bucket
//   - forum_rate_limit_cooldowns_total (Counter): Upstream rate-limit signals recorded
//   - forum_rate_limit_cooldown_seconds (Gauge): Remaining upstream cooldown
//
// Cache Metrics (pkg/cache):
//   - forum_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - forum_cache_misses_total (Counter): Cache misses
//   - forum_cache_size_bytes{layer="redis"} (Gauge): Size of the last stored entry
//   - forum_cache_not_modified_total (Counter): 304 revalidations
//   - forum_cache_errors_total{operation} (Counter): Cache operation errors
//
// Session Metrics (pkg/session):
//   - forum_session_transitions_total{from, to} (Counter): Session state changes
//
// Request Metrics (pkg/client):
//   - forum_requests_total{endpoint, status} (Counter): Dispatches by endpoint and outcome
//   - forum_request_duration_seconds{endpoint} (Histogram): Dispatch duration including retries
//   - forum_errors_total{kind} (Counter): Failed attempts by error kind
//
// Retry Metrics (pkg/client):
//   - forum_retries_total{kind} (Counter): Retries by error kind
//   - forum_retry_backoff_seconds{kind} (Histogram): Backoff duration by error kind
//   - forum_retry_exhausted_total{kind} (Counter): Requests that exhausted their attempts
//   - forum_challenges_total{outcome} (Counter): Challenges detected, solved, failed or skipped
//
// Tool Metrics (internal/tools):
//   - forum_tool_calls_total{tool, outcome} (Counter): MCP tool invocations
//   - forum_tool_call_duration_seconds{tool} (Histogram): MCP tool latency
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(forum_cache_hits_total[5m])) /
//   (sum(rate(forum_cache_hits_total[5m])) + sum(rate(forum_cache_misses_total[5m])))
//
//   # Upstream throttling
//   rate(forum_rate_limit_cooldowns_total[5m]) > 0
//
//   # Retry pressure
//   sum by (kind) (rate(forum_retries_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(forum_request_duration_seconds_bucket[5m]))
