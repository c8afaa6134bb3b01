package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

// MockLLM replays a scripted reply as a stream of small deltas
type MockLLM struct {
	// Reply is the text to stream. When empty the last user message is echoed
	// back in two paragraphs.
	Reply string
	// ChunkSize is the number of bytes per delta
	ChunkSize int
	// Delay is slept between deltas
	Delay time.Duration
	// FailAfter, when positive, sends an error event after that many deltas
	FailAfter int
	// OpenErr is returned from StreamChat when set
	OpenErr error
}

var _ repositories.LargeLanguageModel = (*MockLLM)(nil)

// NewMockLLM creates a new mock LLM
func NewMockLLM() *MockLLM {
	return &MockLLM{ChunkSize: 8, Delay: 20 * time.Millisecond}
}

// StreamChat implements repositories.LargeLanguageModel
func (m *MockLLM) StreamChat(ctx context.Context, messages []entities.ChatMessage, opts repositories.ChatOptions) (<-chan repositories.ChatEvent, error) {
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}

	reply := m.Reply
	if reply == "" {
		reply = echoReply(messages)
	}
	size := m.ChunkSize
	if size <= 0 {
		size = len(reply) + 1
	}

	events := make(chan repositories.ChatEvent, 4)
	go func() {
		defer close(events)
		w := &eventWriter{ctx: ctx, events: events}
		sent := 0
		for rest := reply; rest != ""; {
			if m.FailAfter > 0 && sent == m.FailAfter {
				w.fail(fmt.Errorf("mock generation failed after %d deltas", sent))
				return
			}
			n := min(size, len(rest))
			if m.Delay > 0 {
				select {
				case <-time.After(m.Delay):
				case <-ctx.Done():
					return
				}
			}
			if !w.content(rest[:n]) {
				return
			}
			rest = rest[n:]
			sent++
		}
		w.final()
	}()
	return events, nil
}

func echoReply(messages []entities.ChatMessage) string {
	last := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == entities.UserRole {
			last = strings.TrimSpace(messages[i].Content)
			break
		}
	}
	if last == "" {
		return "Hello! What would you like to talk about?"
	}
	return fmt.Sprintf("You said: %s\n\nWhat else would you like to tell me?", last)
}
