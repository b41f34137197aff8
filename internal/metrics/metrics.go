package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Query cache lookups by outcome: hit, stale, miss
	QueryLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_lookups_total",
			Help: "Total number of query cache lookups",
		},
		[]string{"category", "outcome"},
	)

	QueryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_fetches_total",
			Help: "Total number of settled query fetches",
		},
		[]string{"category", "result"}, // success, error, canceled, discarded
	)

	QueryFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "query_fetch_duration_seconds",
			Help:    "Duration of query fetches",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"category"},
	)

	QueriesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "query_fetches_in_flight",
			Help: "Number of query fetches currently in flight",
		},
	)

	QueryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "query_cache_entries",
			Help: "Number of entries held by the query cache",
		},
	)

	QueryInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_invalidations_total",
			Help: "Total number of entries marked stale by invalidation",
		},
		[]string{"category", "refetch"},
	)

	QueryEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "query_cache_evictions_total",
			Help: "Total number of unobserved entries removed by garbage collection",
		},
	)

	Mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mutations_total",
			Help: "Total number of settled mutations",
		},
		[]string{"name", "status"},
	)

	GatewayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of requests sent to the events backend",
		},
		[]string{"operation", "status"}, // status is the HTTP code or the error kind
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Duration of requests sent to the events backend",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	SnapshotStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_store_errors_total",
			Help: "Total number of snapshot store errors",
		},
		[]string{"level", "kind"}, // level: l1, l2; kind: encode, decode, upstream
	)

	SnapshotStoreCapacity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapshot_store_capacity_bytes",
			Help: "L1 snapshot store capacity in bytes",
		},
		[]string{"level"},
	)

	SnapshotStoreEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "snapshot_store_entries",
			Help: "Number of records held by a snapshot store",
		},
		[]string{"level"},
	)

	ViewRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "view_requests_total",
			Help: "Total number of view server requests",
		},
		[]string{"route", "code"},
	)
)

// RecordQueryLookup records a cache lookup outcome
func RecordQueryLookup(category, outcome string) {
	QueryLookups.WithLabelValues(category, outcome).Inc()
}

// RecordQueryFetch records a settled fetch and its duration
func RecordQueryFetch(category, result string, duration time.Duration) {
	QueryFetches.WithLabelValues(category, result).Inc()
	QueryFetchDuration.WithLabelValues(category).Observe(duration.Seconds())
}

// SetQueriesInFlight updates the in-flight gauge
func SetQueriesInFlight(n int) {
	QueriesInFlight.Set(float64(n))
}

// SetQueryEntries updates the entry count gauge
func SetQueryEntries(n int) {
	QueryEntries.Set(float64(n))
}

// RecordInvalidation records entries marked stale by an invalidation
func RecordInvalidation(category string, refetch string, matched int) {
	QueryInvalidations.WithLabelValues(category, refetch).Add(float64(matched))
}

// RecordEvictions records entries removed by garbage collection
func RecordEvictions(n int) {
	QueryEvictions.Add(float64(n))
}

// RecordMutation records a settled mutation
func RecordMutation(name, status string) {
	Mutations.WithLabelValues(name, status).Inc()
}

// RecordGatewayRequest records a backend request outcome. statusCode 0 means
// no response was received and kind carries the failure category instead.
func RecordGatewayRequest(operation string, statusCode int, kind string, duration time.Duration) {
	status := kind
	if statusCode != 0 {
		status = strconv.Itoa(statusCode)
	}
	GatewayRequests.WithLabelValues(operation, status).Inc()
	GatewayRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSnapshotStoreError records a snapshot store error
func RecordSnapshotStoreError(level, kind string) {
	SnapshotStoreErrors.WithLabelValues(level, kind).Inc()
}

// UpdateL1Capacity updates L1 capacity and entry metrics
func UpdateL1Capacity(capacity, entries int64) {
	SnapshotStoreCapacity.WithLabelValues("l1").Set(float64(capacity))
	SnapshotStoreEntries.WithLabelValues("l1").Set(float64(entries))
}

// RecordViewRequest records a view server response
func RecordViewRequest(route string, code int) {
	ViewRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
