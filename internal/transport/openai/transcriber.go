package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/domain"
	"github.com/kailas-cloud/ragvoice/internal/metrics"
)

// Transcriber converts speech to text with Whisper.
type Transcriber struct {
	client   *openai.Client
	model    string
	provider string
	logger   *zap.Logger
}

// NewTranscriber creates a Whisper transcriber. An empty model selects whisper-1.
func NewTranscriber(client *openai.Client, model, provider string, logger *zap.Logger) *Transcriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &Transcriber{
		client:   client,
		model:    model,
		provider: providerLabel(provider),
		logger:   logger,
	}
}

// Transcribe sends the clip and returns the recognized text and detected language.
// Rejected or silent audio yields domain.ErrTranscription.
func (t *Transcriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (domain.Transcription, error) {
	if filename == "" {
		filename = "audio.webm"
	}

	start := time.Now()
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filename,
		Reader:   audio,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	duration := time.Since(start).Seconds()

	if err != nil {
		err = parseAPIError(t.provider, "transcribe", err)
		metrics.ObserveUpstream(t.provider, "transcribe", duration, err)
		if status := statusOf(err); status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
			return domain.Transcription{}, fmt.Errorf("%w: %w", domain.ErrTranscription, err)
		}
		return domain.Transcription{}, err
	}
	metrics.ObserveUpstream(t.provider, "transcribe", duration, nil)

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return domain.Transcription{}, fmt.Errorf("%w: %w", domain.ErrTranscription, errors.New("no speech recognized"))
	}

	t.logger.Debug("Transcription completed",
		zap.String("provider", t.provider),
		zap.String("language", resp.Language),
		zap.Float64("audio_seconds", resp.Duration),
	)

	return domain.Transcription{Text: text, Language: resp.Language}, nil
}
