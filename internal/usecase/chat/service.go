package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/domain"
	"github.com/kailas-cloud/ragvoice/internal/metrics"
)

// Config holds orchestration settings.
type Config struct {
	TopK            int
	MaxHistoryTurns int
	Temperature     float32
	MaxTokens       int
	RetryInitial    time.Duration
	RetryMax        time.Duration
}

// Answer is a fully generated reply.
type Answer struct {
	Text    string
	Sources domain.RetrievalResult
}

// Service answers questions from retrieved document context.
type Service struct {
	embedder  Embedder
	retriever Retriever
	completer domain.Completer
	cfg       Config
	logger    *zap.Logger
}

// New creates a chat service.
func New(embedder Embedder, retriever Retriever, completer domain.Completer, cfg Config, logger *zap.Logger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.MaxHistoryTurns <= 0 {
		cfg.MaxHistoryTurns = 6
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 500 * time.Millisecond
	}
	if cfg.RetryMax < cfg.RetryInitial {
		cfg.RetryMax = cfg.RetryInitial
	}
	return &Service{
		embedder:  embedder,
		retriever: retriever,
		completer: completer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Answer retrieves context for question and opens a streamed completion.
// Failures before the stream opens are returned as *domain.GenerationError.
func (s *Service) Answer(ctx context.Context, question string, history []domain.Turn) (*AnswerStream, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", domain.ErrInvalidInput)
	}
	var emb domain.EmbeddingResult
	err := s.retry(ctx, "embed", func() error {
		var err error
		emb, err = s.embedder.Embed(ctx, question)
		return err
	})
	if err != nil {
		return nil, domain.NewGenerationError("embed", err)
	}

	q := domain.Query{Text: question, Embedding: emb.Embedding}
	sources, err := s.retriever.Retrieve(ctx, q, s.cfg.TopK)
	switch {
	case errors.Is(err, domain.ErrEmptyStore):
		s.logger.Info("No documents indexed, answering without context")
		sources = nil
	case err != nil:
		return nil, domain.NewGenerationError("retrieve", err)
	}

	prompt := domain.Prompt{
		Messages:    buildPrompt(q.Text, sources, history, s.cfg.MaxHistoryTurns),
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}

	var stream domain.TextStream
	err = s.retry(ctx, "complete", func() error {
		var err error
		stream, err = s.completer.Complete(ctx, prompt)
		return err
	})
	if err != nil {
		return nil, domain.NewGenerationError("complete", err)
	}

	s.logger.Debug("Answer stream opened",
		zap.Int("sources", len(sources)),
		zap.Int("messages", len(prompt.Messages)),
	)
	return &AnswerStream{stream: stream, sources: sources}, nil
}

// Ask generates the whole answer.
func (s *Service) Ask(ctx context.Context, question string, history []domain.Turn) (Answer, error) {
	stream, err := s.Answer(ctx, question, history)
	if err != nil {
		return Answer{}, err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Answer{}, err
		}
		sb.WriteString(frag)
	}
	return Answer{Text: strings.TrimSpace(sb.String()), Sources: stream.Sources()}, nil
}

// retry runs op, repeating it once after a backoff when it fails with a
// retryable upstream error.
func (s *Service) retry(ctx context.Context, stage string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryInitial
	b.MaxInterval = s.cfg.RetryMax

	attempt := 0
	return backoff.Retry(func() error { //nolint:wrapcheck // errors from op are returned as is
		attempt++
		if attempt > 1 {
			metrics.ChatRetriesTotal.WithLabelValues(stage).Inc()
			s.logger.Warn("Retrying upstream call", zap.String("stage", stage))
		}
		err := op()
		if err == nil {
			return nil
		}
		var up *domain.UpstreamError
		if ctx.Err() == nil && errors.As(err, &up) && up.Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(b, 1), ctx))
}

// AnswerStream yields answer fragments in generation order. It is not restartable.
type AnswerStream struct {
	stream  domain.TextStream
	sources domain.RetrievalResult
	err     error
}

// Recv returns the next fragment, io.EOF after the last one, or a
// *domain.GenerationError when the upstream stream fails.
func (a *AnswerStream) Recv() (string, error) {
	if a.err != nil {
		return "", a.err
	}
	frag, err := a.stream.Recv()
	if err == nil {
		return frag, nil
	}
	if errors.Is(err, io.EOF) {
		a.err = io.EOF
	} else {
		a.err = domain.NewGenerationError("stream", err)
	}
	return "", a.err
}

// Sources returns the retrieved chunks the answer is grounded on.
func (a *AnswerStream) Sources() domain.RetrievalResult { return a.sources }

// Close releases the upstream stream.
func (a *AnswerStream) Close() error {
	if a.err == nil {
		a.err = io.EOF
	}
	return a.stream.Close() //nolint:wrapcheck // closing a response body
}
