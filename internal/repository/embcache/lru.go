package embcache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/ragvoice/internal/domain"
	"github.com/kailas-cloud/ragvoice/internal/logger"
)

// LRUEmbedder keeps recent query embeddings in process memory.
// Repeated questions skip the embedding round-trip entirely.
type LRUEmbedder struct {
	inner      domain.Embedder
	cache      *expirable.LRU[string, []float32]
	cacheTotal *prometheus.CounterVec
}

// WrapLRU returns inner unchanged when size or ttl disable the cache.
func WrapLRU(inner domain.Embedder, size int, ttl time.Duration, cacheTotal *prometheus.CounterVec) domain.Embedder {
	if inner == nil || size <= 0 || ttl <= 0 {
		return inner
	}
	return &LRUEmbedder{
		inner:      inner,
		cache:      expirable.NewLRU[string, []float32](size, nil, ttl),
		cacheTotal: cacheTotal,
	}
}

// Embed returns a copy of the cached vector or calls the inner embedder.
func (l *LRUEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if cached, ok := l.cache.Get(text); ok {
		l.inc("hit")
		logger.FromContext(ctx).Debug("embedding cache hit (lru)")
		return domain.EmbeddingResult{Embedding: cloneEmbedding(cached)}, nil
	}
	l.inc("miss")

	res, err := l.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	l.cache.Add(text, cloneEmbedding(res.Embedding))
	return res, nil
}

// BatchEmbed bypasses the LRU: ingestion batches are rarely repeated.
func (l *LRUEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	return domain.EmbedAll(ctx, l.inner, texts)
}

// HealthCheck delegates to the inner embedder when it supports health checks.
func (l *LRUEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := l.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

// Len reports the number of cached entries.
func (l *LRUEmbedder) Len() int { return l.cache.Len() }

func (l *LRUEmbedder) inc(result string) {
	if l.cacheTotal != nil {
		l.cacheTotal.WithLabelValues("lru", result).Inc()
	}
}

func cloneEmbedding(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	clone := make([]float32, len(values))
	copy(clone, values)
	return clone
}
