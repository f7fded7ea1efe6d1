package openai

import (
	"context"
	"errors"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/domain"
	"github.com/kailas-cloud/ragvoice/internal/metrics"
)

// Completer streams chat completions.
type Completer struct {
	client   *openai.Client
	model    string
	provider string
	logger   *zap.Logger
}

// NewCompleter creates a streaming chat completer for the given model (or Azure deployment alias).
func NewCompleter(client *openai.Client, model, provider string, logger *zap.Logger) *Completer {
	return &Completer{
		client:   client,
		model:    model,
		provider: providerLabel(provider),
		logger:   logger,
	}
}

// Complete opens a completion stream. Errors before the first byte are returned here;
// errors after that surface from Recv.
func (c *Completer) Complete(ctx context.Context, p domain.Prompt) (domain.TextStream, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(p.Messages))
	for _, m := range p.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:         c.model,
		Messages:      msgs,
		Temperature:   p.Temperature,
		MaxTokens:     p.MaxTokens,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}

	start := time.Now()
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		err = parseAPIError(c.provider, "complete", err)
		metrics.ObserveUpstream(c.provider, "complete", time.Since(start).Seconds(), err)
		return nil, err
	}
	metrics.ObserveUpstream(c.provider, "complete", time.Since(start).Seconds(), nil)

	return &completionStream{stream: stream, provider: c.provider, logger: c.logger}, nil
}

type completionStream struct {
	stream   *openai.ChatCompletionStream
	provider string
	logger   *zap.Logger
	done     bool
}

// Recv returns the next non-empty fragment, skipping role and usage-only chunks.
func (s *completionStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			return "", io.EOF
		}
		if err != nil {
			s.done = true
			return "", parseAPIError(s.provider, "stream", err)
		}

		if resp.Usage != nil {
			metrics.UpstreamTokensTotal.WithLabelValues(s.provider, "complete", "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.UpstreamTokensTotal.WithLabelValues(s.provider, "complete", "completion").Add(float64(resp.Usage.CompletionTokens))
		}

		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.FinishReason == openai.FinishReasonContentFilter {
			s.done = true
			return "", &domain.UpstreamError{
				Provider: s.provider,
				Op:       "stream",
				Err:      errors.New("answer blocked by content filter"),
			}
		}
		if choice.Delta.Content != "" {
			return choice.Delta.Content, nil
		}
	}
}

func (s *completionStream) Close() error {
	s.done = true
	return s.stream.Close() //nolint:wrapcheck // closing a response body
}
