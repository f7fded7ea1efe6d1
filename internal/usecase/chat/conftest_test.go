package chat

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/domain"
)

// --- Mocks ---

type mockEmbedder struct {
	errs  []error // returned in order, then success
	calls int
	last  string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	m.last = text
	if len(m.errs) >= m.calls {
		if err := m.errs[m.calls-1]; err != nil {
			return domain.EmbeddingResult{}, err
		}
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

type mockRetriever struct {
	result domain.RetrievalResult
	err    error
	k      int
	query  domain.Query
}

func (m *mockRetriever) Retrieve(_ context.Context, q domain.Query, k int) (domain.RetrievalResult, error) {
	m.query = q
	m.k = k
	return m.result, m.err
}

type fakeStream struct {
	mu     sync.Mutex
	frags  []string
	err    error // returned after frags instead of io.EOF
	closed bool
}

func (f *fakeStream) Recv() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frags) > 0 {
		frag := f.frags[0]
		f.frags = f.frags[1:]
		return frag, nil
	}
	if f.err != nil {
		return "", f.err
	}
	return "", io.EOF
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type mockCompleter struct {
	errs    []error
	calls   int
	stream  *fakeStream
	prompts []domain.Prompt
}

func (m *mockCompleter) Complete(_ context.Context, p domain.Prompt) (domain.TextStream, error) {
	m.calls++
	m.prompts = append(m.prompts, p)
	if len(m.errs) >= m.calls {
		if err := m.errs[m.calls-1]; err != nil {
			return nil, err
		}
	}
	return m.stream, nil
}

func newTestService(emb *mockEmbedder, ret *mockRetriever, comp *mockCompleter) *Service {
	return New(emb, ret, comp, Config{
		TopK:            5,
		MaxHistoryTurns: 6,
		Temperature:     0.7,
		MaxTokens:       1000,
		RetryInitial:    time.Millisecond,
		RetryMax:        2 * time.Millisecond,
	}, zap.NewNop())
}

func scored(source, text string, score float64) domain.ScoredChunk {
	return domain.ScoredChunk{Chunk: domain.Chunk{Source: source, Text: text}, Score: score}
}

func upstream(status int) error {
	return &domain.UpstreamError{Provider: "openai", Op: "test", StatusCode: status, Err: io.ErrUnexpectedEOF}
}
