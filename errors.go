package ragvoice

import "github.com/kailas-cloud/ragvoice/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrConfiguration     = domain.ErrConfiguration
	ErrUpstreamAPI       = domain.ErrUpstreamAPI
	ErrTranscription     = domain.ErrTranscription
	ErrSynthesis         = domain.ErrSynthesis
	ErrGeneration        = domain.ErrGeneration
	ErrInvalidInput      = domain.ErrInvalidInput
	ErrDimensionMismatch = domain.ErrDimensionMismatch
	ErrUnsupportedFormat = domain.ErrUnsupportedFormat
)
