package domain

import (
	"context"
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleSystem is the instruction block sent ahead of the conversation.
	RoleSystem Role = "system"
	// RoleUser is a question asked by the user.
	RoleUser Role = "user"
	// RoleAssistant is a previous answer.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r may appear in client-supplied history.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one prior message of the conversation, supplied by the client.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// Message is a single entry of a completion prompt.
type Message struct {
	Role    Role
	Content string
}

// Prompt is the complete input of a chat completion.
type Prompt struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// TextStream yields answer fragments in generation order.
// Recv returns io.EOF after the last fragment. A stream is not restartable.
type TextStream interface {
	Recv() (string, error)
	Close() error
}

// Completer generates a streamed answer for a prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (TextStream, error)
}
