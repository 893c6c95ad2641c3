// Package telemetry is the process's Prometheus metrics registry: HTTP
// request metrics via Middleware, plus counters and gauges the Deliberation
// Store, Runtime Event Consumer and Federation Sync update directly so
// /metrics reflects store throughput, poll latency/backoff and gossip state.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agoranet_http_requests_total",
		Help: "HTTP requests by method, route and status class.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agoranet_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// StoreOpsTotal counts Deliberation Store mutations by operation and
	// outcome ("ok", "idempotent_hit", "not_found", "error").
	StoreOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agoranet_store_ops_total",
		Help: "Deliberation Store operations by op and outcome.",
	}, []string{"op", "outcome"})

	// RuntimePollDuration observes C3's per-poll wall-clock latency.
	RuntimePollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agoranet_runtime_poll_duration_seconds",
		Help:    "Runtime Event Consumer poll latency in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// RuntimeBackoffSeconds is the current decorrelated-jitter backoff delay
	// C3 is about to sleep for (0 when the previous poll succeeded).
	RuntimeBackoffSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agoranet_runtime_backoff_seconds",
		Help: "Current Runtime Event Consumer backoff delay in seconds.",
	})

	// RuntimeEventsProcessedTotal counts events handed to Consumer.project.
	RuntimeEventsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agoranet_runtime_events_processed_total",
		Help: "Runtime events processed by event type.",
	}, []string{"event_type"})

	// FederationPeers is the current connected-peer count of the local node.
	FederationPeers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agoranet_federation_peers",
		Help: "Currently connected federation peers.",
	})

	// FederationVectorSeq is this node's recorded high-water seq per origin.
	FederationVectorSeq = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agoranet_federation_vector_seq",
		Help: "Recorded high-water seq per federation origin node id.",
	}, []string{"origin_node_id"})

	// FederationChangesAppliedTotal counts remote changes by outcome
	// ("applied", "ignored", "error").
	FederationChangesAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agoranet_federation_changes_applied_total",
		Help: "Remote changes received over gossip, by outcome.",
	}, []string{"outcome"})
)

// Handler exposes the registry for mounting at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency per method/route. route
// should be the matched mux pattern (not the raw path), so cardinality stays
// bounded regardless of path parameters.
func Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
