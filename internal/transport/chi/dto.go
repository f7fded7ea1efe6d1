package chi

import (
	"time"

	"github.com/kailas-cloud/ragvoice/internal/domain"
)

type errorCode string

const (
	codeBadRequest          errorCode = "bad_request"
	codeTranscriptionFailed errorCode = "transcription_failed"
	codeSynthesisFailed     errorCode = "synthesis_failed"
	codeGenerationFailed    errorCode = "generation_failed"
	codeUpstreamError       errorCode = "upstream_error"
	codeUnsupportedFormat   errorCode = "unsupported_format"
	codeInternalError       errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

type turnRequest struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type chatRequest struct {
	Question string        `json:"question"`
	Text     string        `json:"text"` // legacy frontend field
	History  []turnRequest `json:"history"`
	Stream   *bool         `json:"stream"`
}

func (r chatRequest) question() string {
	if r.Question != "" {
		return r.Question
	}
	return r.Text
}

// turnsFromRequest keeps turns as sent; the chat service drops invalid ones.
func turnsFromRequest(in []turnRequest) []domain.Turn {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Turn, len(in))
	for i, t := range in {
		out[i] = domain.Turn{Role: domain.Role(t.Role), Text: t.Content}
		if t.Timestamp != nil {
			out[i].Timestamp = *t.Timestamp
		}
	}
	return out
}

type sourceResponse struct {
	Source  string  `json:"source"`
	Ordinal int     `json:"ordinal"`
	Score   float64 `json:"score"`
	Text    string  `json:"text"`
}

type answerResponse struct {
	Answer  string           `json:"answer"`
	Sources []sourceResponse `json:"sources"`
}

func sourcesToResponse(res domain.RetrievalResult) []sourceResponse {
	out := make([]sourceResponse, len(res))
	for i, sc := range res {
		out[i] = sourceResponse{
			Source:  sc.Chunk.Source,
			Ordinal: sc.Chunk.Ordinal,
			Score:   sc.Score,
			Text:    sc.Chunk.Text,
		}
	}
	return out
}

type speechRequest struct {
	Text string `json:"text"`
}

type transcriptionResponse struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

type documentResponse struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Hash       string    `json:"hash"`
	ChunkCount int       `json:"chunk_count"`
	IngestedAt time.Time `json:"ingested_at"`
}

func documentToResponse(d domain.Document) documentResponse {
	return documentResponse{
		ID:         d.ID,
		Source:     d.Source,
		Hash:       d.Hash,
		ChunkCount: d.ChunkCount,
		IngestedAt: d.IngestedAt,
	}
}

type uploadResponse struct {
	Document      documentResponse `json:"document"`
	Outcome       string           `json:"outcome"`
	SkippedChunks int              `json:"skipped_chunks"`
}

type documentListResponse struct {
	Items []documentResponse `json:"items"`
	Total int                `json:"total"`
}

type healthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Documents int               `json:"documents"`
	Chunks    int               `json:"chunks"`
}
