package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync run metrics
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_sync_runs_total",
			Help: "Total number of sync runs by status",
		},
		[]string{"status"},
	)

	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "activity_sync_run_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	SubWindowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_sync_subwindows_total",
			Help: "Total number of day sub-windows processed",
		},
	)

	LastSuccessTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "activity_sync_last_success_timestamp_seconds",
			Help: "Unix time of the start of the last successful sync run",
		},
	)

	// Upstream metrics
	PagesFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_upstream_pages_total",
			Help: "Total number of upstream pages fetched",
		},
	)

	FailedRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_upstream_failed_requests_total",
			Help: "Total number of upstream page requests that failed",
		},
	)

	RequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "activity_upstream_request_duration_seconds",
			Help:    "Duration of upstream page requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Merge metrics
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_records_total",
			Help: "Total number of upstream records merged by outcome",
		},
		[]string{"outcome"}, // created, updated, failed, warning
	)

	// Housekeeping metrics
	EventsDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_retention_events_deleted_total",
			Help: "Total number of events removed by retention sweeps",
		},
	)

	ExportsDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_retention_exports_deleted_total",
			Help: "Total number of export files removed by retention sweeps",
		},
	)

	ExportsWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "activity_exports_written_total",
			Help: "Total number of CSV exports written",
		},
	)

	// Job metrics
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_jobs_total",
			Help: "Total number of jobs executed by task name and status",
		},
		[]string{"task", "status"},
	)

	JobsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_jobs_skipped_total",
			Help: "Total number of jobs skipped because another run held the lock",
		},
		[]string{"task"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "activity_jobs_queue_depth",
			Help: "Current depth of the local job queue",
		},
	)
)
