package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine metrics for production monitoring
var (
	// Investigation metrics
	InvestigationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dossier_investigations_total",
			Help: "Total number of investigations run",
		},
		[]string{"status"},
	)

	InvestigationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dossier_investigation_duration_seconds",
			Help:    "Investigation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
	)

	SearchIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dossier_search_iterations",
			Help:    "Search iterations consumed per investigation",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	// Search collaborator metrics
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dossier_searches_total",
			Help: "Total number of search queries issued",
		},
		[]string{"status"},
	)

	SearchResultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dossier_search_results_total",
			Help: "Total number of search results retrieved",
		},
	)

	// LLM metrics
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dossier_llm_requests_total",
			Help: "Total number of inference requests",
		},
		[]string{"provider", "class", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dossier_llm_request_duration_seconds",
			Help:    "Inference request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"provider", "class"},
	)

	LLMFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dossier_llm_fallbacks_total",
			Help: "Requests served by the fallback provider",
		},
		[]string{"class"},
	)

	// Evidence metrics
	EvidenceExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dossier_evidence_extracted_total",
			Help: "Evidence items merged into the store",
		},
		[]string{"kind"}, // finding, risk, connection
	)

	ReportsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dossier_reports_generated_total",
			Help: "Total number of reports rendered",
		},
	)

	// Serve-mode metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dossier_websocket_connections",
			Help: "Current number of active WebSocket subscribers",
		},
	)
)
