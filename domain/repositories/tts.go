package repositories

import "context"

type TextToSpeech interface {
	// ConvertTextToSpeech synthesizes the complete audio for text
	ConvertTextToSpeech(ctx context.Context, text string, config VoiceConfig) (*Audio, error)
}

// VoiceConfig selects the voice and output encoding of a synthesis request.
// Empty fields fall back to the backend defaults.
type VoiceConfig struct {
	Model  string
	Voice  string
	Format string
}

// Audio is a fully synthesized clip
type Audio struct {
	Data   []byte
	Format string
}
