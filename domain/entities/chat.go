package entities

import (
	"errors"
	"fmt"
)

// Role defines the type of message sender
type Role string

const (
	SystemRole    Role = "system"
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
)

// Limits on the inbound chat history
const (
	MaxContentLength = 10000
	MaxNameLength    = 255
)

// ChatMessage represents a single message in a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Validate validates the chat message fields
func (m *ChatMessage) Validate() error {
	switch m.Role {
	case SystemRole, UserRole, AssistantRole:
	case "":
		return errors.New("role is required")
	default:
		return fmt.Errorf("role must be one of: system, user, assistant, got %q", m.Role)
	}
	if len(m.Content) > MaxContentLength {
		return fmt.Errorf("content must be at most %d characters", MaxContentLength)
	}
	if len(m.Name) > MaxNameLength {
		return fmt.Errorf("name must be at most %d characters", MaxNameLength)
	}
	return nil
}
