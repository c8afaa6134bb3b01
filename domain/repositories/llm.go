package repositories

import (
	"context"

	"github.com/satriahrh/voicerelay/domain/entities"
)

// LargeLanguageModel abstracts any chat/LLM provider
type LargeLanguageModel interface {
	// StreamChat starts a streaming completion for the given history.
	// The returned channel yields cumulative snapshots and is closed after
	// exactly one ChatEventFinal or ChatEventError event.
	StreamChat(ctx context.Context, messages []entities.ChatMessage, opts ChatOptions) (<-chan ChatEvent, error)
}

// ChatOptions tunes a single completion request
type ChatOptions struct {
	Model     string
	MaxTokens int
}

// ChatEventType identifies the kind of a streamed generation event
type ChatEventType string

const (
	ChatEventContent ChatEventType = "content"
	ChatEventFinal   ChatEventType = "final"
	ChatEventError   ChatEventType = "error"
)

// ChatEvent is one element of a generation stream. Snapshot always holds the
// full text generated so far, Delta only the newly appended piece.
type ChatEvent struct {
	Type     ChatEventType
	Delta    string
	Snapshot string
	Err      error
}
