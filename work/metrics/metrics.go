package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProxyRequests counts relay fetches by content class ("manifest", "segment",
// "passthrough") and outcome ("ok", "timeout", "upstream_error", "error").
var ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vidrelay_proxy_requests_total",
	Help: "Relayed upstream fetches",
}, []string{"content", "outcome"})

// UpstreamDuration observes end-to-end upstream fetch latency per content class.
var UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "vidrelay_upstream_fetch_seconds",
	Help:    "Upstream fetch duration",
	Buckets: prometheus.DefBuckets,
}, []string{"content"})

// CacheLookups counts resolved-stream cache lookups by namespace and result
// ("hit" or "miss").
var CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vidrelay_cache_lookups_total",
	Help: "Resolved-stream cache lookups",
}, []string{"namespace", "result"})

// CacheErrors counts absorbed cache backend failures by namespace and
// operation. These never surface to clients, so the counter is the only
// place they remain visible.
var CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vidrelay_cache_errors_total",
	Help: "Absorbed cache backend errors",
}, []string{"namespace", "op"})

// ResolverFailures counts classified resolver failures by stable error code.
var ResolverFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vidrelay_resolver_failures_total",
	Help: "Classified resolver failures",
}, []string{"code"})
