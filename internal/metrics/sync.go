package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync engine metrics
var (
	// SweepsTotal counts full sweeps by how they were triggered.
	SweepsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_sweeps_total",
			Help:      "Total number of sync sweeps",
		},
		[]string{"trigger"},
	)

	// SourceRunsTotal counts per-source runs by terminal result.
	SourceRunsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_source_runs_total",
			Help:      "Total number of per-source sync runs by result",
		},
		[]string{"result"},
	)

	// SourceRunDuration records how long one source's Listing→Committing
	// sequence takes.
	SourceRunDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_source_run_duration_seconds",
			Help:      "Duration of one source's sync run in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// FilesFetchedTotal counts files downloaded from providers.
	FilesFetchedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_files_fetched_total",
			Help:      "Total number of files fetched from providers",
		},
	)

	// FilesIngestedTotal counts files accepted by the detection pipeline.
	FilesIngestedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_files_ingested_total",
			Help:      "Total number of files accepted by the ingestion sink",
		},
	)

	// FilesFailedTotal counts per-file failures by class.
	FilesFailedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_files_failed_total",
			Help:      "Total number of per-file failures",
		},
		[]string{"class"},
	)

	// ListingErrorsTotal counts source-level listing failures. The auth
	// class is the operator-actionable one.
	ListingErrorsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_listing_errors_total",
			Help:      "Total number of listing failures by class",
		},
		[]string{"class"},
	)
)
