package usecase

import (
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain/entities"
)

// DefaultSystemPrompt is prepended when the caller sends no system message
const DefaultSystemPrompt = "Separate paragraphs in your response with a blank line."

// ChatService builds the message list sent to the language model
type ChatService struct {
	postfix string
	logger  *zap.Logger
}

// NewChatService creates a new chat service. postfix is appended to the
// caller's system message so replies come back in blank-line separated
// paragraphs.
func NewChatService(postfix string, logger *zap.Logger) *ChatService {
	return &ChatService{postfix: postfix, logger: logger}
}

// PrepareMessages returns a copy of history with the paragraph instruction
// applied and the transcription appended as a user message from speakerName.
func (s *ChatService) PrepareMessages(history []entities.ChatMessage, transcription, speakerName string) []entities.ChatMessage {
	messages := make([]entities.ChatMessage, 0, len(history)+2)
	messages = append(messages, history...)

	systemIdx := -1
	for i, msg := range messages {
		if msg.Role == entities.SystemRole {
			systemIdx = i
			break
		}
	}

	if systemIdx >= 0 {
		if !strings.HasSuffix(messages[systemIdx].Content, s.postfix) {
			messages[systemIdx].Content += s.postfix
		}
	} else {
		messages = append([]entities.ChatMessage{{
			Role:    entities.SystemRole,
			Content: DefaultSystemPrompt,
			Name:    "system",
		}}, messages...)
	}

	messages = append(messages, entities.ChatMessage{
		Role:    entities.UserRole,
		Content: transcription,
		Name:    speakerName,
	})

	s.logger.Debug("Chat prepared",
		zap.Int("messages", len(messages)),
		zap.Bool("callerSystemPrompt", systemIdx >= 0))
	return messages
}
