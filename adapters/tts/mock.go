package tts

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain/repositories"
)

// MockTextToSpeech returns deterministic fake audio. Each clip is the text
// prefixed with a small header, so receivers can check what was synthesized.
type MockTextToSpeech struct {
	// Latency is slept before returning, or the value of LatencyFor if set
	Latency    time.Duration
	LatencyFor func(text string) time.Duration
	// FailOn, when it returns a non-nil error, fails the call for that text
	FailOn func(text string) error
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*MockTextToSpeech)(nil)

// NewMockTextToSpeech creates a new mock text-to-speech service
func NewMockTextToSpeech(logger *zap.Logger) *MockTextToSpeech {
	return &MockTextToSpeech{logger: logger}
}

// MockAudio returns the clip the mock produces for text
func MockAudio(text string) []byte {
	return []byte("MOCK:" + text)
}

// ConvertTextToSpeech implements repositories.TextToSpeech
func (m *MockTextToSpeech) ConvertTextToSpeech(ctx context.Context, text string, config repositories.VoiceConfig) (*repositories.Audio, error) {
	latency := m.Latency
	if m.LatencyFor != nil {
		latency = m.LatencyFor(text)
	}
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.FailOn != nil {
		if err := m.FailOn(text); err != nil {
			return nil, err
		}
	}

	format := config.Format
	if format == "" {
		format = "mp3"
	}
	m.logger.Debug("Mock speech synthesized", zap.Int("textLength", len(text)), zap.String("format", format))
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	return &repositories.Audio{Data: MockAudio(text), Format: format}, nil
}
