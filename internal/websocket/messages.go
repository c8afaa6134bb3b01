package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/satriahrh/voicerelay/internal/api"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Supported message types
const (
	MessageTypeVoiceRequest MessageType = "voice_request"
	MessageTypeVoiceEnd     MessageType = "voice_end"
	MessageTypeError        MessageType = "error"
)

// BaseMessage defines the common structure for all text messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// VoiceRequestMessage opens a voice turn. It carries the same fields as the
// HTTP request body.
type VoiceRequestMessage struct {
	Type MessageType `json:"type"`
	api.VoiceRequest
}

// VoiceEndMessage follows the last binary frame of a successful turn
type VoiceEndMessage struct {
	BaseMessage
	RequestID     string `json:"request_id,omitempty"`
	Transcription string `json:"transcription,omitempty"`
	Frames        int    `json:"frames"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string           `json:"error_code"`
	Message string           `json:"message"`
	Details string           `json:"details,omitempty"`
	Errors  []api.FieldError `json:"errors,omitempty"`
}

// ParseVoiceRequest decodes the opening message of a connection
func ParseVoiceRequest(data []byte) (*api.VoiceRequest, error) {
	var msg VoiceRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}
	if msg.Type != MessageTypeVoiceRequest {
		return nil, fmt.Errorf("unsupported message type: %q", msg.Type)
	}
	return &msg.VoiceRequest, nil
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeError,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		Code:    code,
		Message: message,
		Details: details,
	}
}

// CreateVoiceEndMessage creates the end-of-turn message
func CreateVoiceEndMessage(requestID, transcription string, frames int) *VoiceEndMessage {
	return &VoiceEndMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeVoiceEnd,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		RequestID:     requestID,
		Transcription: transcription,
		Frames:        frames,
	}
}
