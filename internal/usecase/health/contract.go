package health

import (
	"context"

	"github.com/kailas-cloud/ragvoice/internal/usecase/retrieval"
)

// StorePinger checks document store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexStats reports the size of the in-memory index.
type IndexStats interface {
	Stats() retrieval.Stats
}
