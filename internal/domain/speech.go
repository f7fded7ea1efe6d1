package domain

import (
	"context"
	"io"
)

// Transcription is the recognized text of an audio clip.
type Transcription struct {
	Text     string
	Language string // detected language, empty when the provider does not report it
}

// AudioStream is a stream of encoded audio bytes.
type AudioStream = io.ReadCloser

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (Transcription, error)
}

// Synthesizer converts text to streamed speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (AudioStream, error)
}
