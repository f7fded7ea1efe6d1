package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/domain"
	"github.com/kailas-cloud/ragvoice/internal/usecase/retrieval"
)

// --- Mocks ---

type memStore struct {
	mu      sync.Mutex
	docs    []domain.Document
	chunks  map[string][]domain.Chunk
	saveErr error
	deleted []string
}

func newMemStore() *memStore {
	return &memStore{chunks: make(map[string][]domain.Chunk)}
}

func (m *memStore) Save(_ context.Context, doc domain.Document, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	for i, d := range m.docs {
		if d.ID == doc.ID {
			m.docs = append(m.docs[:i], m.docs[i+1:]...)
			break
		}
	}
	m.docs = append(m.docs, doc)
	m.chunks[doc.ID] = chunks
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.docs {
		if d.ID == id {
			m.docs = append(m.docs[:i], m.docs[i+1:]...)
			delete(m.chunks, id)
			m.deleted = append(m.deleted, id)
			return nil
		}
	}
	return domain.ErrDocumentNotFound
}

func (m *memStore) List(_ context.Context) ([]domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Document(nil), m.docs...), nil
}

func (m *memStore) Chunks(_ context.Context, docID string) ([]domain.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[docID]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return c, nil
}

// fakeEmbedder returns a 3-dim vector per text. Texts containing failOn fail.
type fakeEmbedder struct {
	mu         sync.Mutex
	failOn     string
	batchErr   error
	batchCalls int
	singles    int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	f.mu.Lock()
	f.singles++
	f.mu.Unlock()
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return domain.EmbeddingResult{}, &domain.UpstreamError{Provider: "fake", Op: "embed", StatusCode: 400, Err: errors.New("bad input")}
	}
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text)), 1, 0}, TotalTokens: 1}, nil
}

func (f *fakeEmbedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	f.mu.Lock()
	f.batchCalls++
	batchErr := f.batchErr
	f.mu.Unlock()
	if batchErr != nil {
		return domain.BatchEmbeddingResult{}, batchErr
	}
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, t := range texts {
		if f.failOn != "" && strings.Contains(t, f.failOn) {
			return domain.BatchEmbeddingResult{}, errors.New("batch rejected")
		}
		out.Embeddings[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

// recordingIndex keeps the stats of every snapshot published through Swap.
type recordingIndex struct {
	*retrieval.Index
	published []retrieval.Stats
}

func (r *recordingIndex) Swap(oldID string, doc domain.Document, chunks []domain.Chunk) retrieval.Stats {
	st := r.Index.Swap(oldID, doc, chunks)
	r.published = append(r.published, st)
	return st
}

type fixture struct {
	svc    *Service
	store  *memStore
	index  *retrieval.Index
	emb    *fakeEmbedder
	rawDir string
}

func newFixture(t *testing.T, chunkSize int) *fixture {
	t.Helper()
	rawDir := filepath.Join(t.TempDir(), "raw")
	store := newMemStore()
	index := retrieval.NewIndex(3, zap.NewNop())
	emb := &fakeEmbedder{}
	svc := New(store, index, emb, Config{
		RawDir:       rawDir,
		ChunkSize:    chunkSize,
		ChunkOverlap: 0,
		BatchSize:    2,
	}, zap.NewNop())
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return &fixture{svc: svc, store: store, index: index, emb: emb, rawDir: rawDir}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}
