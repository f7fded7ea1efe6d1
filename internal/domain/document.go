package domain

import "time"

// Document is an ingested source file. It is immutable once stored and only
// replaced by re-ingesting the same source.
type Document struct {
	ID         string
	Source     string // file name relative to the raw documents directory
	Text       string
	Hash       string // hex digest of the raw file bytes
	ChunkCount int
	IngestedAt time.Time
}

// Chunk is a contiguous slice of a document's text with its embedding.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int // position of the chunk within the document
	Offset     int // byte offset of the chunk text within Document.Text
	Text       string
	Source     string
	Embedding  []float32
}

// ScoredChunk is a retrieval hit.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// RetrievalResult is ordered by descending score.
type RetrievalResult []ScoredChunk

// Query is a question with its computed embedding. It lives for one request.
type Query struct {
	Text      string
	Embedding []float32
}
