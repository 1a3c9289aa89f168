// Package telemetry defines the Prometheus metrics for the sync and
// aggregation pipelines.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_sync_jobs_total",
			Help: "Total sync jobs finished, labeled by sync type and status.",
		},
		[]string{"sync_type", "status"},
	)

	syncPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_pages_fetched_total",
			Help: "Total pages fetched from the upstream API, labeled by site.",
		},
		[]string{"site"},
	)

	syncRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_rows_synced_total",
			Help: "Total analytics rows persisted, labeled by site and sync type.",
		},
		[]string{"site", "sync_type"},
	)

	syncDayFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_day_failures_total",
			Help: "Days whose fetch failed and were skipped, labeled by site.",
		},
		[]string{"site"},
	)

	aggregationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_aggregation_runs_total",
			Help: "Aggregation attempts, labeled by outcome.",
		},
		[]string{"status"},
	)

	aggregationDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "searchsync_aggregation_duration_seconds",
			Help:    "Histogram of single-date aggregation latencies.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchsync_http_requests_total",
			Help: "Total API requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)
)

// RecordSyncJob counts a finished sync job by outcome.
func RecordSyncJob(syncType, status string) {
	syncJobsTotal.WithLabelValues(syncType, status).Inc()
}

// RecordPageFetched counts one upstream page fetch for a site.
func RecordPageFetched(siteID int64) {
	syncPagesTotal.WithLabelValues(strconv.FormatInt(siteID, 10)).Inc()
}

// RecordRowsSynced adds persisted row counts for a site.
func RecordRowsSynced(siteID int64, syncType string, n int64) {
	syncRowsTotal.WithLabelValues(strconv.FormatInt(siteID, 10), syncType).Add(float64(n))
}

// RecordDayFailure counts a day whose fetch was abandoned.
func RecordDayFailure(siteID int64) {
	syncDayFailuresTotal.WithLabelValues(strconv.FormatInt(siteID, 10)).Inc()
}

// RecordAggregation counts one aggregation attempt and its latency.
func RecordAggregation(status string, d time.Duration) {
	aggregationRunsTotal.WithLabelValues(status).Inc()
	aggregationDurationSeconds.Observe(d.Seconds())
}

// RecordHTTPRequest counts one served API request.
func RecordHTTPRequest(method string, code int) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
