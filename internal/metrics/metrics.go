package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Orchestration run metrics
	RunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heroes_runs_started_total",
			Help: "Total number of orchestration runs started",
		},
		[]string{"persona"},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heroes_runs_completed_total",
			Help: "Total number of orchestration runs completed",
		},
		[]string{"persona", "intent", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heroes_run_duration_seconds",
			Help:    "Orchestration run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"intent"},
	)

	NodeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heroes_node_transitions_total",
			Help: "Total number of node transitions in the orchestration graph",
		},
		[]string{"node"},
	)

	NodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heroes_node_errors_total",
			Help: "Total number of node errors absorbed by the engine",
		},
		[]string{"node"},
	)

	StepBudgetExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heroes_step_budget_exceeded_total",
			Help: "Total number of runs aborted by the step budget guard",
		},
	)

	// RAG metrics
	Refinements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heroes_rag_refinements_total",
			Help: "Total number of RAG refinement attempts",
		},
	)

	RetrievalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heroes_retrieval_requests_total",
			Help: "Total number of retrieval requests",
		},
		[]string{"backend", "status"},
	)

	RetrievalLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heroes_retrieval_latency_seconds",
			Help:    "Snippet retrieval latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	ValidationConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "heroes_validation_confidence",
			Help:    "Validator confidence score per draft",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heroes_llm_requests_total",
			Help: "Total number of LLM sidecar requests",
		},
		[]string{"kind", "status"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heroes_llm_latency_seconds",
			Help:    "LLM sidecar request latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	// Market data metrics
	MarketFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heroes_market_fetches_total",
			Help: "Total number of market snapshot fetches",
		},
		[]string{"status"},
	)

	MarketFetchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "heroes_market_fetch_latency_seconds",
			Help:    "Market snapshot fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	MarketSignCorrections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heroes_market_sign_corrections_total",
			Help: "Total number of negative 52-week-low corrections applied",
		},
	)

	// Historical store metrics
	HistoricalLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heroes_historical_lookups_total",
			Help: "Total number of historical store lookups",
		},
		[]string{"kind"},
	)

	// Composer metrics
	FastPathResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heroes_fast_path_responses_total",
			Help: "Total number of fast-path (non-persona) responses",
		},
		[]string{"kind"},
	)

	// Session metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heroes_sessions_created_total",
			Help: "Total number of sessions created",
		},
	)

	SessionCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heroes_session_cache_hits_total",
			Help: "Total number of session cache hits",
		},
	)

	SessionCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heroes_session_cache_misses_total",
			Help: "Total number of session cache misses",
		},
	)

	SessionCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heroes_session_cache_size",
			Help: "Current number of sessions in local cache",
		},
	)

	SessionCacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heroes_session_cache_evictions_total",
			Help: "Total number of sessions evicted from local cache",
		},
	)
)

// RecordRunMetrics records metrics for a completed orchestration run
func RecordRunMetrics(persona, intent, status string, durationSeconds float64) {
	RunsCompleted.WithLabelValues(persona, intent, status).Inc()
	RunDuration.WithLabelValues(intent).Observe(durationSeconds)
}

// RecordRetrievalMetrics records retrieval metrics
func RecordRetrievalMetrics(backend, status string, durationSeconds float64) {
	RetrievalRequests.WithLabelValues(backend, status).Inc()
	if durationSeconds > 0 {
		RetrievalLatency.WithLabelValues(backend).Observe(durationSeconds)
	}
}

// RecordLLMMetrics records LLM sidecar call metrics
func RecordLLMMetrics(kind, status string, durationSeconds float64) {
	LLMRequests.WithLabelValues(kind, status).Inc()
	if durationSeconds > 0 {
		LLMLatency.WithLabelValues(kind).Observe(durationSeconds)
	}
}

// RecordMarketFetch records a market snapshot fetch outcome
func RecordMarketFetch(status string, durationSeconds float64) {
	MarketFetches.WithLabelValues(status).Inc()
	if durationSeconds > 0 {
		MarketFetchLatency.Observe(durationSeconds)
	}
}
