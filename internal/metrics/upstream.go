package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ragvoice"

// Upstream API and pipeline Prometheus metrics.
var (
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of hosted API requests",
		},
		[]string{"provider", "operation", "status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Hosted API request duration in seconds (time to first byte for streams)",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "operation"},
	)

	UpstreamTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_tokens_total",
			Help:      "Total tokens consumed by hosted APIs",
		},
		[]string{"provider", "operation", "type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"layer", "result"}, // layer: "lru" / "redis"; result: "hit" / "miss"
	)

	ChatRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_retries_total",
			Help:      "Retries of upstream calls made by the chat pipeline",
		},
		[]string{"stage"},
	)

	IngestDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_documents_total",
			Help:      "Ingested documents by outcome",
		},
		[]string{"result"}, // "indexed" / "unchanged" / "failed"
	)

	IndexChunks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_chunks",
			Help:      "Number of chunks in the in-memory retrieval index",
		},
	)

	IndexDocuments = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_documents",
			Help:      "Number of documents in the in-memory retrieval index",
		},
	)
)

var registerOnce sync.Once

// RegisterPipelineMetrics registers upstream and pipeline metrics on the default registry.
// Repeated calls are no-ops.
func RegisterPipelineMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(UpstreamRequestsTotal)
		prometheus.MustRegister(UpstreamRequestDuration)
		prometheus.MustRegister(UpstreamTokensTotal)
		prometheus.MustRegister(EmbeddingCacheTotal)
		prometheus.MustRegister(ChatRetriesTotal)
		prometheus.MustRegister(IngestDocumentsTotal)
		prometheus.MustRegister(IndexChunks)
		prometheus.MustRegister(IndexDocuments)
	})
}

// ObserveUpstream records the outcome of one hosted API call.
func ObserveUpstream(provider, operation string, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	UpstreamRequestsTotal.WithLabelValues(provider, operation, status).Inc()
	if err == nil {
		UpstreamRequestDuration.WithLabelValues(provider, operation).Observe(seconds)
	}
}
