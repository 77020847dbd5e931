package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OperationsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsentry_operations_started_total",
			Help: "Total index/scan operations started",
		},
		[]string{"kind"},
	)

	OperationsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsentry_operations_finished_total",
			Help: "Total index/scan operations finished, by terminal status",
		},
		[]string{"kind", "status"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsentry_operation_duration_seconds",
			Help:    "Wall-clock duration of index/scan operations",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"kind"},
	)

	FilesIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docsentry_files_indexed_total",
			Help: "Total files successfully indexed",
		},
	)

	FilesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsentry_files_skipped_total",
			Help: "Total files skipped during indexing, by reason",
		},
		[]string{"reason"},
	)

	ScanMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsentry_scan_matches_total",
			Help: "Total scan matches found, by match type",
		},
		[]string{"match_type"},
	)

	ExtractionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsentry_extraction_failures_total",
			Help: "Total content extraction failures, by reason",
		},
		[]string{"reason"},
	)

	StorageRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsentry_storage_request_duration_seconds",
			Help:    "Storage backend request latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"backend", "operation"},
	)

	VocabularyTerms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docsentry_vocabulary_terms",
			Help: "Terms in the active vocabulary",
		},
	)

	VocabularyRefits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docsentry_vocabulary_refits_total",
			Help: "Total corpus-wide vocabulary refits",
		},
	)

	IndexedFilesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docsentry_indexed_files_total",
			Help: "Indexed files currently persisted",
		},
	)
)

func Init() {
	prometheus.MustRegister(OperationsStarted)
	prometheus.MustRegister(OperationsFinished)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(FilesIndexed)
	prometheus.MustRegister(FilesSkipped)
	prometheus.MustRegister(ScanMatches)
	prometheus.MustRegister(ExtractionFailures)
	prometheus.MustRegister(StorageRequestDuration)
	prometheus.MustRegister(VocabularyTerms)
	prometheus.MustRegister(VocabularyRefits)
	prometheus.MustRegister(IndexedFilesTotal)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
