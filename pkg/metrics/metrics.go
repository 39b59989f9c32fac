// Package metrics exposes the Prometheus registry used by the Gemini client.
// The metrics themselves are defined next to the code that records them
// (pkg/client, pkg/cache) to keep packages free of import cycles.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the Gemini client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads back what Registry collected.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the collected metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - gemini_cache_hits_total (Counter): Cache hits
//   - gemini_cache_misses_total (Counter): Cache misses
//   - gemini_cache_errors_total{operation} (Counter): Redis errors absorbed by the manager
//   - gemini_cache_disabled_total (Counter): Managers disabled because Redis was unreachable
//
// Request Metrics (pkg/client):
//   - gemini_requests_total{model, status} (Counter): Calls by model and outcome
//     (HTTP status, cache_hit or transport_error)
//   - gemini_request_duration_seconds{model} (Histogram): HTTP round trip duration
//   - gemini_errors_total{kind} (Counter): Errors by taxonomy kind
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(gemini_cache_hits_total[5m])) /
//   (sum(rate(gemini_cache_hits_total[5m])) + sum(rate(gemini_cache_misses_total[5m])))
//
//   # Rate limited calls
//   rate(gemini_errors_total{kind="rate_limit"}[5m])
//
//   # P95 Request Latency per model
//   histogram_quantile(0.95, sum by (model, le) (rate(gemini_request_duration_seconds_bucket[5m])))
