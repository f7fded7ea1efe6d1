package chat

import (
	"context"

	"github.com/kailas-cloud/ragvoice/internal/domain"
)

// Embedder vectorizes the question.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Retriever returns the chunks most similar to an embedded question.
type Retriever interface {
	Retrieve(ctx context.Context, q domain.Query, k int) (domain.RetrievalResult, error)
}
