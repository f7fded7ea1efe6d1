package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/ragvoice/internal/domain"
	"github.com/kailas-cloud/ragvoice/internal/metrics"
)

// maxSpeechInput is the longest input accepted by the speech endpoint.
const maxSpeechInput = 4096

// Speaker synthesizes MP3 speech with the OpenAI TTS endpoint.
type Speaker struct {
	client   *openai.Client
	model    openai.SpeechModel
	voice    openai.SpeechVoice
	provider string
}

// NewSpeaker creates a TTS synthesizer.
func NewSpeaker(client *openai.Client, model, voice, provider string) *Speaker {
	return &Speaker{
		client:   client,
		model:    openai.SpeechModel(model),
		voice:    openai.SpeechVoice(voice),
		provider: providerLabel(provider),
	}
}

// Synthesize returns an MP3 stream of text. The caller closes it.
func (s *Speaker) Synthesize(ctx context.Context, text string) (domain.AudioStream, error) {
	text = strings.TrimSpace(text)
	if len(text) > maxSpeechInput {
		return nil, fmt.Errorf("%w: text longer than %d bytes", domain.ErrSynthesis, maxSpeechInput)
	}

	start := time.Now()
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	duration := time.Since(start).Seconds()

	if err != nil {
		err = parseAPIError(s.provider, "tts", err)
		metrics.ObserveUpstream(s.provider, "tts", duration, err)
		if status := statusOf(err); status == http.StatusBadRequest || status == http.StatusUnprocessableEntity {
			return nil, fmt.Errorf("%w: %w", domain.ErrSynthesis, err)
		}
		return nil, err
	}
	metrics.ObserveUpstream(s.provider, "tts", duration, nil)

	return resp.ReadCloser, nil
}
