package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/kailas-cloud/ragvoice/internal/domain"
)

// Retrieve returns the k chunks most similar to the query embedding by cosine
// similarity, highest first. Equal scores keep ingestion order.
func (ix *Index) Retrieve(ctx context.Context, q domain.Query, k int) (domain.RetrievalResult, error) {
	embedding := q.Embedding
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", domain.ErrInvalidInput, k)
	}

	s := ix.snap.Load()
	if len(s.chunks) == 0 {
		return nil, domain.ErrEmptyStore
	}
	if ix.dims > 0 && len(embedding) != ix.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, len(embedding), ix.dims)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	qNorm := norm(embedding)
	scored := make([]domain.ScoredChunk, len(s.chunks))
	for i, ic := range s.chunks {
		if len(ic.chunk.Embedding) != len(embedding) {
			return nil, fmt.Errorf("%w: chunk %s has %d dimensions, query has %d",
				domain.ErrDimensionMismatch, ic.chunk.ID, len(ic.chunk.Embedding), len(embedding))
		}
		scored[i] = domain.ScoredChunk{
			Chunk: ic.chunk,
			Score: cosine(embedding, ic.chunk.Embedding, qNorm, ic.norm),
		}
	}

	slices.SortStableFunc(scored, func(a, b domain.ScoredChunk) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return domain.RetrievalResult(scored), nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns 0 when either vector has zero length.
func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
