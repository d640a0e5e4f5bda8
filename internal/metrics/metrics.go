package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Catalog operation metrics
var (
	CatalogOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_operations_total",
			Help: "Total number of catalog operations",
		},
		[]string{"operation", "status"},
	)

	CatalogOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_operation_duration_seconds",
			Help:    "Catalog operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	CatalogDuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_duplicates_total",
			Help: "Total number of create calls rejected as duplicate content",
		},
	)
)

// Search metrics
var (
	SearchQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_search_queries_total",
			Help: "Total number of search queries",
		},
		[]string{"kind", "status"}, // kind: search, group, contextual_tags
	)

	SearchQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_search_query_duration_seconds",
			Help:    "Search query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"kind"},
	)

	SearchResultsReturned = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_search_results_returned",
			Help:    "Number of results returned per search page",
			Buckets: []float64{0, 1, 10, 25, 50, 100, 250, 500},
		},
		[]string{"kind"},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"result"}, // commit, rollback
	)

	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_db_rows_affected",
			Help:    "Rows affected by write operations",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Ingestion metrics
var (
	IngestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_ingest_runs_total",
			Help: "Total number of ingestion runs",
		},
		[]string{"status"}, // completed, aborted, rejected
	)

	IngestEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_ingest_entries_total",
			Help: "Total number of queue entries processed by ingestion",
		},
		[]string{"result"}, // created, updated, existing, duplicate, errored
	)

	IngestRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_ingest_running",
			Help: "Whether an ingestion run is active (1 = running, 0 = idle)",
		},
	)

	IngestLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_ingest_last_run_duration_seconds",
			Help: "Duration of the last ingestion run in seconds",
		},
	)

	DiscoveryFilesQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_discovery_files_queued_total",
			Help: "Total number of filesystem paths queued by discovery",
		},
	)
)

// HTTP metrics for the RPC facade
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)
)

// Memory backpressure metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_memory_usage_ratio",
			Help: "Heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_memory_paused",
			Help: "Whether processing is paused for memory pressure (1) or not (0)",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_memory_gc_pauses_total",
			Help: "Total number of forced GC cycles triggered by memory pressure",
		},
	)
)

// Filesystem retry metrics for media on network mounts
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_fs_retry_attempts_total",
			Help: "Total number of filesystem operation retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_fs_retry_success_total",
			Help: "Total number of filesystem operations that succeeded after retrying",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_fs_retry_failures_total",
			Help: "Total number of filesystem operations that exhausted their retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_fs_stale_errors_total",
			Help: "Total number of stale NFS file handle errors observed",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_fs_operation_duration_seconds",
			Help:    "Filesystem operation duration including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "volume"},
	)
)
