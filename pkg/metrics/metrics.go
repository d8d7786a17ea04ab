// Package metrics registers every counter, gauge, and histogram named
// in spec §6 (C10 Observability Hooks) against
// github.com/prometheus/client_golang, promoted here to a first-class
// dependency now that the teacher's OPA stack (which pulled it in only
// transitively) is out of scope. All metrics are process-wide; callers
// label per-tenant and per-kind values at the call site.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counters

	APIRequestCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acs_api_request_count",
		Help: "Total RPC edge requests received.",
	}, []string{"tenant", "method"})

	APIRequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acs_api_request_errors",
		Help: "Total RPC edge requests that returned a non-success error code.",
	}, []string{"tenant", "method", "code"})

	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acs_auth_login_attempts",
		Help: "Authentication attempts observed at the RPC edge.",
	}, []string{"tenant"})

	LoginSuccess = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acs_auth_login_success",
		Help: "Successful authentications observed at the RPC edge.",
	}, []string{"tenant"})

	LoginFailure = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acs_auth_login_failure",
		Help: "Failed authentications observed at the RPC edge.",
	}, []string{"tenant"})

	BusinessUsers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acs_business_users_total",
		Help: "Cumulative user lifecycle events (create/delete).",
	}, []string{"tenant", "op"})

	BusinessGroups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acs_business_groups_total",
		Help: "Cumulative group lifecycle events (create/delete).",
	}, []string{"tenant", "op"})

	BusinessPermissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acs_business_permissions_total",
		Help: "Cumulative permission lifecycle events (grant/revoke).",
	}, []string{"tenant", "op"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acs_cache_hits",
		Help: "Entity cache hits by item type.",
	}, []string{"tenant", "type"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acs_cache_misses",
		Help: "Entity cache misses by item type.",
	}, []string{"tenant", "type"})

	BufferEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acs_buffer_enqueued",
		Help: "Commands successfully enqueued onto the per-tenant command buffer.",
	}, []string{"tenant"})

	BufferCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acs_buffer_completed",
		Help: "Commands that committed successfully.",
	}, []string{"tenant"})

	BufferFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "acs_buffer_failed",
		Help: "Commands that failed, were cancelled, or were rejected.",
	}, []string{"tenant"})

	// Gauges

	APIActiveRequests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acs_api_active_requests",
		Help: "In-flight RPC edge requests.",
	}, []string{"tenant"})

	BufferQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acs_buffer_queue_depth",
		Help: "Current depth of the per-tenant command buffer queue.",
	}, []string{"tenant"})

	BufferBackpressure = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acs_buffer_backpressure",
		Help: "1 from when queueDepth reaches the high watermark until it is at or below the low watermark, else 0.",
	}, []string{"tenant"})

	GraphEntityCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acs_graph_entity_count",
		Help: "Total entities held in the in-memory graph.",
	}, []string{"tenant"})

	GraphMemoryBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "acs_graph_memory_bytes",
		Help: "Estimated in-memory graph size in bytes.",
	}, []string{"tenant"})

	// Histograms

	apiLatencyBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acs_api_request_duration_ms",
		Help:    "RPC edge request latency in milliseconds.",
		Buckets: apiLatencyBuckets,
	}, []string{"tenant", "method"})

	BufferLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acs_buffer_latency_ms",
		Help:    "Time an envelope spent from enqueue to completion.",
		Buckets: apiLatencyBuckets,
	}, []string{"tenant"})

	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acs_handler_duration_ms",
		Help:    "Handler execution time by command/query kind.",
		Buckets: apiLatencyBuckets,
	}, []string{"tenant", "kind"})

	DBQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "acs_db_query_duration_ms",
		Help:    "Persistence layer query latency in milliseconds.",
		Buckets: apiLatencyBuckets,
	}, []string{"tenant", "op"})
)
