package chi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	router "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/domain"
	"github.com/kailas-cloud/ragvoice/internal/repository/document"
	chatuc "github.com/kailas-cloud/ragvoice/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/ragvoice/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragvoice/internal/usecase/ingest"
	"github.com/kailas-cloud/ragvoice/internal/usecase/retrieval"
	speechuc "github.com/kailas-cloud/ragvoice/internal/usecase/speech"
)

// --- Mocks ---

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, _ string) (domain.EmbeddingResult, error) {
	domain.UsageFromContext(ctx).AddTokens(4)
	return domain.EmbeddingResult{Embedding: []float32{1, 0, 0}, TotalTokens: 4}, nil
}

type fakeStream struct {
	frags []string
	err   error
}

func (f *fakeStream) Recv() (string, error) {
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

func (f *fakeStream) Close() error { return nil }

// liveStream sends one fragment and then blocks on the request context,
// the way a model stream does while generating.
type liveStream struct {
	ctx    context.Context
	first  string
	sent   bool
	once   sync.Once
	closed chan struct{}
}

func (l *liveStream) Recv() (string, error) {
	if !l.sent {
		l.sent = true
		return l.first, nil
	}
	<-l.ctx.Done()
	return "", l.ctx.Err()
}

func (l *liveStream) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

type fakeCompleter struct {
	mu      sync.Mutex
	frags   []string
	openErr error
	midErr  error
	prompts []domain.Prompt
	live    chan *liveStream // when set, Complete hands out a liveStream
}

func (f *fakeCompleter) Complete(ctx context.Context, p domain.Prompt) (domain.TextStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.live != nil {
		ls := &liveStream{ctx: ctx, first: f.frags[0], closed: make(chan struct{})}
		f.live <- ls
		return ls, nil
	}
	return &fakeStream{frags: append([]string(nil), f.frags...), err: f.midErr}, nil
}

type fakeTranscriber struct {
	got      []byte
	filename string
	err      error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio io.Reader, filename string) (domain.Transcription, error) {
	f.got, _ = io.ReadAll(audio)
	f.filename = filename
	if f.err != nil {
		return domain.Transcription{}, f.err
	}
	return domain.Transcription{Text: "what is in the handbook", Language: "english"}, nil
}

type fakeSynthesizer struct {
	audio string
	err   error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ string) (domain.AudioStream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.audio)), nil
}

// --- Fixture ---

type fixture struct {
	completer   *fakeCompleter
	transcriber *fakeTranscriber
	synthesizer *fakeSynthesizer
	index       *retrieval.Index
	handler     http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	dataDir := t.TempDir()

	repo, err := document.NewFileRepo(filepath.Join(dataDir, "embeddings"))
	if err != nil {
		t.Fatalf("file repo: %v", err)
	}
	index := retrieval.NewIndex(3, logger)

	f := &fixture{
		completer:   &fakeCompleter{frags: []string{"Hello", ", ", "world"}},
		transcriber: &fakeTranscriber{},
		synthesizer: &fakeSynthesizer{audio: "ID3\x04mp3-frames"},
		index:       index,
	}

	chat := chatuc.New(fakeEmbedder{}, index, f.completer, chatuc.Config{
		RetryInitial: time.Millisecond,
		RetryMax:     time.Millisecond,
	}, logger)
	speech := speechuc.New(f.transcriber, f.synthesizer, logger)
	ingest := ingestuc.New(repo, index, fakeEmbedder{}, ingestuc.Config{
		RawDir:       filepath.Join(dataDir, "raw"),
		ChunkSize:    200,
		ChunkOverlap: 20,
	}, logger)
	health := healthuc.New(repo, nil, index, logger)

	srv := NewServer(chat, speech, ingest, health, Limits{MaxAudioBytes: 1 << 10, MaxUploadBytes: 1 << 20}, logger)
	r := router.NewRouter()
	srv.Routes(r)
	f.handler = r
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}
