package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration signals missing or invalid startup configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrEmptyStore signals that no chunks are indexed yet.
	ErrEmptyStore = errors.New("document store is empty")
	// ErrUpstreamAPI signals a hosted API failure (rate limit, 5xx, transport).
	ErrUpstreamAPI = errors.New("upstream api error")
	// ErrTranscription signals empty, malformed or unrecognizable audio.
	ErrTranscription = errors.New("transcription failed")
	// ErrSynthesis signals that the speech provider rejected the input.
	ErrSynthesis = errors.New("synthesis failed")
	// ErrGeneration signals that an answer could not be produced.
	ErrGeneration = errors.New("generation failed")
	// ErrInvalidInput signals a malformed request.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDimensionMismatch signals a vector of unexpected length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrUnsupportedFormat signals a document type that cannot be ingested.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
)

// UpstreamError describes a failed call to a hosted API.
type UpstreamError struct {
	Provider   string
	Op         string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

// Unwrap exposes both ErrUpstreamAPI and the underlying cause.
func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstreamAPI, e.Err} }

// Retryable reports whether a repeated call may succeed.
func (e *UpstreamError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// GenerationError is returned by the chat pipeline when an answer cannot be produced.
// Stage names the pipeline step that failed: "embed", "complete" or "stream".
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrGeneration.Error(), e.Stage, e.Err)
}

// Unwrap exposes both ErrGeneration and the underlying cause.
func (e *GenerationError) Unwrap() []error { return []error{ErrGeneration, e.Err} }

// NewGenerationError wraps err as a failure of the given pipeline stage.
func NewGenerationError(stage string, err error) error {
	return &GenerationError{Stage: stage, Err: err}
}
