package stt

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/voicerelay/domain/repositories"
)

func TestGetAudioEncoding(t *testing.T) {
	tests := []struct {
		format  string
		want    speechpb.RecognitionConfig_AudioEncoding
		wantErr bool
	}{
		{"webm", speechpb.RecognitionConfig_WEBM_OPUS, false},
		{"ogg", speechpb.RecognitionConfig_OGG_OPUS, false},
		{"wav", speechpb.RecognitionConfig_LINEAR16, false},
		{"FLAC", speechpb.RecognitionConfig_FLAC, false},
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16, false},
		{"mp4", speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			got, err := getAudioEncoding(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("getAudioEncoding() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("getAudioEncoding() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGoogleSpeechToText_TranscribeAudio(t *testing.T) {
	var captured *speechpb.RecognizeRequest
	g := &GoogleSpeechToText{
		language: "id-ID",
		logger:   zaptest.NewLogger(t),
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			captured = req
			return &speechpb.RecognizeResponse{Results: []*speechpb.SpeechRecognitionResult{
				{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "halo "}}},
				{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "apa kabar"}}},
			}}, nil
		},
	}

	text, err := g.TranscribeAudio(context.Background(), []byte{1, 2, 3}, repositories.AudioConfig{Format: "webm", SampleRate: 48000})
	if err != nil {
		t.Fatalf("TranscribeAudio() error = %v", err)
	}
	if text != "halo apa kabar" {
		t.Errorf("TranscribeAudio() = %q", text)
	}
	cfg := captured.GetConfig()
	if cfg.GetLanguageCode() != "id-ID" || cfg.GetEncoding() != speechpb.RecognitionConfig_WEBM_OPUS || cfg.GetSampleRateHertz() != 48000 {
		t.Errorf("recognition config = %v", cfg)
	}
	if string(captured.GetAudio().GetContent()) != "\x01\x02\x03" {
		t.Errorf("audio content not forwarded")
	}
}

func TestGoogleSpeechToText_Errors(t *testing.T) {
	rpcErr := errors.New("unavailable")
	g := &GoogleSpeechToText{
		language: "en-US",
		logger:   zaptest.NewLogger(t),
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return nil, rpcErr
		},
	}

	if _, err := g.TranscribeAudio(context.Background(), nil, repositories.AudioConfig{Format: "wav"}); err == nil {
		t.Error("expected error for empty audio")
	}
	if _, err := g.TranscribeAudio(context.Background(), []byte{1}, repositories.AudioConfig{Format: "mp4"}); err == nil {
		t.Error("expected error for unsupported format")
	}
	if _, err := g.TranscribeAudio(context.Background(), []byte{1}, repositories.AudioConfig{Format: "wav"}); !errors.Is(err, rpcErr) {
		t.Errorf("TranscribeAudio() error = %v, want %v", err, rpcErr)
	}

	g.recognize = func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		return &speechpb.RecognizeResponse{}, nil
	}
	if _, err := g.TranscribeAudio(context.Background(), []byte{1}, repositories.AudioConfig{Format: "wav"}); err == nil {
		t.Error("expected error when no speech is detected")
	}
}
