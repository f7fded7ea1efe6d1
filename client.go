package ragvoice

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/app"
	"github.com/kailas-cloud/ragvoice/internal/config"
	"github.com/kailas-cloud/ragvoice/internal/domain"
	chatuc "github.com/kailas-cloud/ragvoice/internal/usecase/chat"
	ingestuc "github.com/kailas-cloud/ragvoice/internal/usecase/ingest"
)

// Client is an embedded ragvoice assistant.
type Client struct {
	app    *app.App
	logger *zap.Logger
}

// New wires the assistant and loads previously ingested documents.
// Either WithOpenAI/WithAzureOpenAI or both WithEmbedder and WithCompleter are required.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cc := &clientConfig{}
	for _, o := range opts {
		o.apply(cc)
	}
	if cc.logger == nil {
		cc.logger = zap.NewNop()
	}

	cfg, ov := cc.build()
	a, err := app.Build(ctx, cfg, cc.logger, ov)
	if err != nil {
		return nil, fmt.Errorf("ragvoice: %w", err)
	}
	return &Client{app: a, logger: cc.logger}, nil
}

func (cc *clientConfig) build() (config.Config, app.Overrides) {
	cfg := config.Config{}
	cfg.OpenAI.Provider = cc.provider
	cfg.OpenAI.APIKey = cc.apiKey
	cfg.OpenAI.AzureEndpoint = cc.azureEndpoint
	cfg.OpenAI.AzureAPIKey = cc.azureAPIKey
	cfg.Chat.Deployment = cc.chatDeployment
	cfg.Embedding.Deployment = cc.embeddingDeployment
	cfg.Embedding.Dimensions = cc.dimensions
	cfg.Retrieval.TopK = cc.topK
	cfg.Storage.DataDir = cc.dataDir

	if len(cc.addrs) > 0 {
		cfg.Storage.Driver = config.DriverRedis
		cfg.Storage.Addrs = cc.addrs
		cfg.Storage.Password = cc.password
	}

	cfg.Speech.TTSProvider = config.TTSNone
	if cc.elevenLabsKey != "" {
		cfg.Speech.TTSProvider = config.TTSElevenLabs
		cfg.Speech.ElevenLabs.APIKey = cc.elevenLabsKey
		cfg.Speech.ElevenLabs.VoiceID = cc.elevenLabsVoice
	}
	cfg.ApplyDefaults()

	var ov app.Overrides
	if cc.embedder != nil {
		ov.Embedder = &embedderAdapter{inner: cc.embedder}
	}
	if cc.completer != nil {
		ov.Completer = &completerAdapter{inner: cc.completer}
	}
	return cfg, ov
}

// Ask answers question from the ingested documents and waits for the full reply.
func (c *Client) Ask(ctx context.Context, question string, history ...Turn) (Answer, error) {
	ans, err := c.app.Chat.Ask(ctx, question, toDomainTurns(history))
	if err != nil {
		return Answer{}, fmt.Errorf("ask: %w", err)
	}
	return Answer{Text: ans.Text, Sources: toSources(ans.Sources)}, nil
}

// Answer opens a streamed reply. The caller must Close the stream.
func (c *Client) Answer(ctx context.Context, question string, history ...Turn) (*AnswerStream, error) {
	s, err := c.app.Chat.Answer(ctx, question, toDomainTurns(history))
	if err != nil {
		return nil, fmt.Errorf("answer: %w", err)
	}
	return &AnswerStream{inner: s}, nil
}

// Ingest adds or refreshes one file. Files outside the data directory are copied into it.
func (c *Client) Ingest(ctx context.Context, path string) (IngestResult, error) {
	res, err := c.app.Ingest.IngestFile(ctx, path)
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest %s: %w", path, err)
	}
	return toIngestResult(res), nil
}

// IngestReader stores r under name in the data directory and indexes it.
func (c *Client) IngestReader(ctx context.Context, name string, r io.Reader) (IngestResult, error) {
	res, err := c.app.Ingest.IngestUpload(ctx, name, r)
	if err != nil {
		return IngestResult{}, fmt.Errorf("ingest %s: %w", name, err)
	}
	return toIngestResult(res), nil
}

// Documents lists the indexed documents.
func (c *Client) Documents(ctx context.Context) []Document {
	docs := c.app.Ingest.List(ctx)
	out := make([]Document, len(docs))
	for i, d := range docs {
		out[i] = toDocument(d)
	}
	return out
}

// Transcribe converts recorded speech to text. filename hints the audio format.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (Transcription, error) {
	t, err := c.app.Speech.Transcribe(ctx, audio, filename)
	if err != nil {
		return Transcription{}, err //nolint:wrapcheck // speech service already adds context
	}
	return Transcription{Text: t.Text, Language: t.Language}, nil
}

// Synthesize streams spoken audio for text. Requires WithElevenLabs.
func (c *Client) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	return c.app.Speech.Synthesize(ctx, text) //nolint:wrapcheck // speech service already adds context
}

// Close releases storage connections.
func (c *Client) Close() error {
	c.app.Close()
	_ = c.logger.Sync()
	return nil
}

// AnswerStream yields answer fragments in generation order.
type AnswerStream struct {
	inner *chatuc.AnswerStream
}

// Recv returns the next fragment, or io.EOF after the last one.
func (s *AnswerStream) Recv() (string, error) {
	return s.inner.Recv() //nolint:wrapcheck // stream errors are already typed
}

// Sources returns the chunks the answer is grounded on.
func (s *AnswerStream) Sources() []Source { return toSources(s.inner.Sources()) }

// Close stops generation.
func (s *AnswerStream) Close() error {
	return s.inner.Close() //nolint:wrapcheck // transparent
}

func toDomainTurns(in []Turn) []domain.Turn {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Turn, len(in))
	for i, t := range in {
		out[i] = domain.Turn{Role: domain.Role(t.Role), Text: t.Text}
	}
	return out
}

func toSources(res domain.RetrievalResult) []Source {
	out := make([]Source, len(res))
	for i, sc := range res {
		out[i] = Source{
			Source:  sc.Chunk.Source,
			Ordinal: sc.Chunk.Ordinal,
			Text:    sc.Chunk.Text,
			Score:   sc.Score,
		}
	}
	return out
}

func toDocument(d domain.Document) Document {
	return Document{
		ID:         d.ID,
		Source:     d.Source,
		Hash:       d.Hash,
		ChunkCount: d.ChunkCount,
		IngestedAt: d.IngestedAt,
	}
}

func toIngestResult(r ingestuc.Result) IngestResult {
	return IngestResult{Document: toDocument(r.Document), Outcome: string(r.Outcome), Skipped: r.Skipped}
}

// embedderAdapter adapts the public Embedder to domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, err //nolint:wrapcheck // user-provided embedder
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// completerAdapter adapts the public Completer to domain.Completer.
type completerAdapter struct {
	inner Completer
}

func (a *completerAdapter) Complete(ctx context.Context, p domain.Prompt) (domain.TextStream, error) {
	req := CompletionRequest{
		Messages:    make([]Message, len(p.Messages)),
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	}
	for i, m := range p.Messages {
		req.Messages[i] = Message{Role: string(m.Role), Content: m.Content}
	}
	s, err := a.inner.Complete(ctx, req)
	if err != nil {
		return nil, err //nolint:wrapcheck // user-provided completer
	}
	return s, nil
}
