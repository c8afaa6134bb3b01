package stt

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain/repositories"
)

// MockSpeechToText returns canned transcriptions for local runs and tests
type MockSpeechToText struct {
	// Transcript, when set, is returned for every clip
	Transcript string
	// Err, when set, is returned instead of a transcript
	Err    error
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{logger: logger}
}

// TranscribeAudio implements repositories.SpeechToText
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	s.logger.Info("Processing speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.String("format", config.Format))

	if s.Err != nil {
		return "", s.Err
	}
	if len(audioData) == 0 {
		return "", fmt.Errorf("no audio data received")
	}
	if s.Transcript != "" {
		return s.Transcript, nil
	}

	// Mock transcription based on audio size
	switch {
	case len(audioData) > 10000:
		return "Tell me a short story about a lighthouse keeper.", nil
	case len(audioData) > 1000:
		return "How is the weather today?", nil
	default:
		return "Hello there!", nil
	}
}
