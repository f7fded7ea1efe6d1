package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragvoice/internal/domain"
)

// Service converts between audio and text. A nil synthesizer disables
// text-to-speech.
type Service struct {
	transcriber domain.Transcriber
	synthesizer domain.Synthesizer
	logger      *zap.Logger
}

// New creates a speech service.
func New(transcriber domain.Transcriber, synthesizer domain.Synthesizer, logger *zap.Logger) *Service {
	return &Service{transcriber: transcriber, synthesizer: synthesizer, logger: logger}
}

// Transcribe converts a recorded clip to text.
func (s *Service) Transcribe(ctx context.Context, audio []byte, filename string) (domain.Transcription, error) {
	if len(audio) == 0 {
		return domain.Transcription{}, fmt.Errorf("%w: empty audio", domain.ErrTranscription)
	}
	if s.transcriber == nil {
		return domain.Transcription{}, fmt.Errorf("%w: no transcription provider configured", domain.ErrConfiguration)
	}

	tr, err := s.transcriber.Transcribe(ctx, bytes.NewReader(audio), filename)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("transcribe %d bytes: %w", len(audio), err)
	}
	s.logger.Debug("Audio transcribed",
		zap.Int("bytes", len(audio)),
		zap.String("language", tr.Language),
		zap.Int("chars", len(tr.Text)),
	)
	return tr, nil
}

// Synthesize streams speech for text. Blank text yields an empty stream.
func (s *Service) Synthesize(ctx context.Context, text string) (domain.AudioStream, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	if s.synthesizer == nil {
		return nil, fmt.Errorf("%w: no speech provider configured", domain.ErrConfiguration)
	}

	audio, err := s.synthesizer.Synthesize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("synthesize %d chars: %w", len(text), err)
	}
	return audio, nil
}

// CanSynthesize reports whether a text-to-speech provider is configured.
func (s *Service) CanSynthesize() bool { return s.synthesizer != nil }
