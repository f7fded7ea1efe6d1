package document

import (
	"time"

	"github.com/kailas-cloud/ragvoice/internal/domain"
)

// documentJSON is the on-disk form of a document for the file backend.
type documentJSON struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Hash       string    `json:"hash"`
	Text       string    `json:"text"`
	ChunkCount int       `json:"chunk_count"`
	IngestedAt time.Time `json:"ingested_at"`
}

// chunkJSON is the on-disk form of a chunk for the file backend.
type chunkJSON struct {
	ID        string    `json:"id"`
	Ordinal   int       `json:"ordinal"`
	Offset    int       `json:"offset"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

func documentToJSON(d domain.Document) documentJSON {
	return documentJSON{
		ID:         d.ID,
		Source:     d.Source,
		Hash:       d.Hash,
		Text:       d.Text,
		ChunkCount: d.ChunkCount,
		IngestedAt: d.IngestedAt.UTC(),
	}
}

func documentFromJSON(j documentJSON) domain.Document {
	return domain.Document{
		ID:         j.ID,
		Source:     j.Source,
		Hash:       j.Hash,
		Text:       j.Text,
		ChunkCount: j.ChunkCount,
		IngestedAt: j.IngestedAt,
	}
}

func chunksToJSON(chunks []domain.Chunk) []chunkJSON {
	out := make([]chunkJSON, len(chunks))
	for i, c := range chunks {
		out[i] = chunkJSON{
			ID:        c.ID,
			Ordinal:   c.Ordinal,
			Offset:    c.Offset,
			Text:      c.Text,
			Embedding: c.Embedding,
		}
	}
	return out
}

func chunksFromJSON(doc domain.Document, in []chunkJSON) []domain.Chunk {
	out := make([]domain.Chunk, len(in))
	for i, c := range in {
		out[i] = domain.Chunk{
			ID:         c.ID,
			DocumentID: doc.ID,
			Ordinal:    c.Ordinal,
			Offset:     c.Offset,
			Text:       c.Text,
			Source:     doc.Source,
			Embedding:  c.Embedding,
		}
	}
	return out
}
