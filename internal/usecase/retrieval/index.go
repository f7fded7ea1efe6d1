// Package retrieval keeps the in-memory chunk index and answers similarity queries.
package retrieval

import (
	"cmp"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/domain"
	"github.com/kailas-cloud/ragvoice/internal/metrics"
)

// Entry is a document with its embedded chunks.
type Entry struct {
	Document domain.Document
	Chunks   []domain.Chunk
}

// Stats summarizes the index.
type Stats struct {
	Documents int
	Chunks    int
}

type indexedChunk struct {
	chunk domain.Chunk
	norm  float64
}

// snapshot is immutable once published.
type snapshot struct {
	entries []Entry // ingestion order
	chunks  []indexedChunk
}

// Index is a copy-on-write set of chunk embeddings.
// Readers load the current snapshot without locking; writers serialize on mu
// and publish a fresh snapshot, so a query never sees a partial update.
type Index struct {
	dims   int
	mu     sync.Mutex
	snap   atomic.Pointer[snapshot]
	logger *zap.Logger
}

// NewIndex creates an empty index for vectors of the given dimension.
func NewIndex(dims int, logger *zap.Logger) *Index {
	ix := &Index{dims: dims, logger: logger}
	ix.snap.Store(&snapshot{})
	return ix
}

// Load replaces the whole index with entries.
func (ix *Index) Load(entries []Entry) Stats {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	next := &snapshot{entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		e.Chunks = ix.validChunks(e.Document, e.Chunks)
		next.entries = append(next.entries, e)
	}
	return ix.publish(next)
}

// Swap publishes doc in place of the document oldID in a single snapshot.
// The new entry takes the old one's slot in ingestion order. An entry that
// already has doc's ID is replaced too; with neither present doc is appended.
func (ix *Index) Swap(oldID string, doc domain.Document, chunks []domain.Chunk) Stats {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	cur := ix.snap.Load()
	entry := Entry{Document: doc, Chunks: ix.validChunks(doc, chunks)}

	next := &snapshot{entries: make([]Entry, 0, len(cur.entries)+1)}
	placed := false
	for _, e := range cur.entries {
		if id := e.Document.ID; id == doc.ID || (oldID != "" && id == oldID) {
			if !placed {
				next.entries = append(next.entries, entry)
				placed = true
			}
			continue
		}
		next.entries = append(next.entries, e)
	}
	if !placed {
		next.entries = append(next.entries, entry)
	}
	return ix.publish(next)
}

// Stats returns document and chunk counts of the current snapshot.
func (ix *Index) Stats() Stats {
	s := ix.snap.Load()
	return Stats{Documents: len(s.entries), Chunks: len(s.chunks)}
}

// Documents returns indexed documents in ingestion order, with ChunkCount
// reflecting the chunks actually indexed.
func (ix *Index) Documents() []domain.Document {
	s := ix.snap.Load()
	docs := make([]domain.Document, len(s.entries))
	for i, e := range s.entries {
		docs[i] = e.Document
		docs[i].ChunkCount = len(e.Chunks)
	}
	return docs
}

// publish flattens entries into the searchable chunk list and swaps it in. Caller holds mu.
func (ix *Index) publish(next *snapshot) Stats {
	total := 0
	for _, e := range next.entries {
		total += len(e.Chunks)
	}
	next.chunks = make([]indexedChunk, 0, total)
	for _, e := range next.entries {
		ordered := slices.Clone(e.Chunks)
		slices.SortStableFunc(ordered, func(a, b domain.Chunk) int { return cmp.Compare(a.Ordinal, b.Ordinal) })
		for _, c := range ordered {
			next.chunks = append(next.chunks, indexedChunk{chunk: c, norm: norm(c.Embedding)})
		}
	}
	ix.snap.Store(next)

	st := Stats{Documents: len(next.entries), Chunks: len(next.chunks)}
	metrics.IndexDocuments.Set(float64(st.Documents))
	metrics.IndexChunks.Set(float64(st.Chunks))
	return st
}

// validChunks drops chunks whose vector length differs from the index dimension.
func (ix *Index) validChunks(doc domain.Document, chunks []domain.Chunk) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if ix.dims > 0 && len(c.Embedding) != ix.dims {
			ix.logger.Warn("Skipping chunk with unexpected dimension",
				zap.String("document_id", doc.ID),
				zap.String("source", doc.Source),
				zap.Int("ordinal", c.Ordinal),
				zap.Int("dimensions", len(c.Embedding)),
				zap.Int("expected", ix.dims),
			)
			continue
		}
		out = append(out, c)
	}
	return out
}
