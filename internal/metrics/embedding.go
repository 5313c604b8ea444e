package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// EmbeddingRequestsTotal counts embedding API requests by model and status.
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding API requests",
		},
		[]string{"model", "status"},
	)

	// EmbeddingRequestDuration tracks embedding API request latency.
	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "retrieval",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding API request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model"},
	)

	// EmbeddingTokensTotal counts tokens consumed by embedding requests.
	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Name:      "embedding_tokens_total",
			Help:      "Total tokens consumed by embedding requests",
		},
		[]string{"model", "type"},
	)

	// EmbeddingTextsTotal counts texts embedded, by model.
	EmbeddingTextsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Name:      "embedding_texts_total",
			Help:      "Total number of texts sent for embedding",
		},
		[]string{"model"},
	)

	// EmbeddingErrorsTotal counts embedding failures by model and kind.
	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Name:      "embedding_errors_total",
			Help:      "Total number of embedding API errors",
		},
		[]string{"model", "kind"},
	)

	// EmbeddingCacheTotal counts embedding cache lookups by result (hit, miss).
	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retrieval",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by result",
		},
		[]string{"result"},
	)
)

// RegisterEmbeddingMetrics registers embedding metrics with the default registry.
// Safe to call once at startup.
func RegisterEmbeddingMetrics() {
	prometheus.MustRegister(
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingTokensTotal,
		EmbeddingTextsTotal,
		EmbeddingErrorsTotal,
		EmbeddingCacheTotal,
	)
}
