package ragvoice

import (
	"context"
	"time"
)

// Embedder converts text to vector embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Message is one entry of a completion request. Role is "system", "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is the full input of a chat completion.
type CompletionRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// TextStream yields generated text fragments; Recv returns io.EOF after the last one.
type TextStream interface {
	Recv() (string, error)
	Close() error
}

// Completer generates a streamed answer.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (TextStream, error)
}

// Turn is a prior message of the conversation. Role is "user" or "assistant".
type Turn struct {
	Role string
	Text string
}

// Source is a retrieved chunk an answer is grounded on.
type Source struct {
	Source  string
	Ordinal int
	Text    string
	Score   float64
}

// Answer is a fully generated reply.
type Answer struct {
	Text    string
	Sources []Source
}

// Document is an indexed source file.
type Document struct {
	ID         string
	Source     string
	Hash       string
	ChunkCount int
	IngestedAt time.Time
}

// IngestResult describes an ingested file. Outcome is "indexed" or "unchanged".
type IngestResult struct {
	Document Document
	Outcome  string
	Skipped  int
}

// Transcription is the recognized text of an audio clip.
type Transcription struct {
	Text     string
	Language string
}
