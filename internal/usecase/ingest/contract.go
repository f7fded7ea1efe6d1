package ingest

import (
	"context"

	"github.com/kailas-cloud/ragvoice/internal/domain"
	"github.com/kailas-cloud/ragvoice/internal/usecase/retrieval"
)

// Store persists documents and their chunks.
type Store interface {
	Save(ctx context.Context, doc domain.Document, chunks []domain.Chunk) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.Document, error)
	Chunks(ctx context.Context, docID string) ([]domain.Chunk, error)
}

// Index is the in-memory retrieval index fed by ingestion.
type Index interface {
	Load(entries []retrieval.Entry) retrieval.Stats
	Swap(oldID string, doc domain.Document, chunks []domain.Chunk) retrieval.Stats
	Documents() []domain.Document
}
