package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan metrics
var (
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "songhash_scans_total",
			Help: "Total number of scans by final status",
		},
		[]string{"status"}, // "completed", "up_to_date", "failed", "cancelled"
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "songhash_scan_duration_seconds",
			Help:    "Wall-clock duration of scans in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		},
	)

	ScanLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "songhash_scan_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last finished scan",
		},
	)

	ScanInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "songhash_scan_in_progress",
			Help: "Whether a server-triggered scan is currently running (1) or not (0)",
		},
	)
)

// Pipeline metrics
var (
	FilesDiscoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "songhash_files_discovered_total",
			Help: "Total number of supported media files enumerated",
		},
	)

	FilesStaleTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "songhash_files_stale_total",
			Help: "Total number of files selected for rehashing",
		},
	)

	FilesHashedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "songhash_files_hashed_total",
			Help: "Total number of files hashed by the pipeline",
		},
	)

	BytesReadTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "songhash_bytes_read_total",
			Help: "Total number of file bytes read by the pipeline",
		},
	)

	ReadErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "songhash_read_errors_total",
			Help: "Total number of file read failures that aborted a scan",
		},
	)

	DatabaseRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "songhash_database_records",
			Help: "Number of records in a database file after its last scan",
		},
		[]string{"database"},
	)
)
