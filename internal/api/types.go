package api

import (
	"encoding/base64"
	"fmt"
	"slices"
	"strings"

	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/usecase"
)

// Request limits
const (
	MaxFieldLength = 255
	MaxAudioLength = 1_000_000
)

// Request defaults. Empty model and voice fields use the backend defaults.
const (
	DefaultSpeakerName    = "user"
	DefaultAudioFormat    = "webm"
	DefaultResponseFormat = "mp3"
)

// ResponseFormats lists the accepted audio encodings for synthesized parts
var ResponseFormats = []string{"mp3", "opus", "aac", "flac", "wav", "pcm"}

// VoiceRequest is the JSON body of a voice turn
type VoiceRequest struct {
	SpeakerName    string                 `json:"speakerName"`
	STTModel       string                 `json:"sttModel"`
	ChatModel      string                 `json:"chatModel"`
	TTSModel       string                 `json:"ttsModel"`
	Voice          string                 `json:"voice"`
	Chat           []entities.ChatMessage `json:"chat"`
	Audio          string                 `json:"audio"`
	AudioFormat    string                 `json:"audioFormat"`
	ResponseFormat string                 `json:"responseFormat"`
}

// FieldError describes one invalid field of a request
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationErrorResponse is returned with 400 when a request is rejected
type ValidationErrorResponse struct {
	Errors []FieldError `json:"errors"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// VoiceValidator rejects voices the configured speech backend cannot use
type VoiceValidator func(voice string) error

// Parse applies defaults, validates every field and decodes the audio.
// All problems are reported at once.
func (r VoiceRequest) Parse(transport string, validateVoice VoiceValidator) (usecase.VoiceRequest, []FieldError) {
	var errs []FieldError
	fail := func(path, format string, args ...any) {
		errs = append(errs, FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if r.SpeakerName == "" {
		r.SpeakerName = DefaultSpeakerName
	}
	if r.AudioFormat == "" {
		r.AudioFormat = DefaultAudioFormat
	}
	if r.ResponseFormat == "" {
		r.ResponseFormat = DefaultResponseFormat
	}

	for path, value := range map[string]string{
		"speakerName": r.SpeakerName,
		"sttModel":    r.STTModel,
		"chatModel":   r.ChatModel,
		"ttsModel":    r.TTSModel,
		"voice":       r.Voice,
		"audioFormat": r.AudioFormat,
	} {
		if len(value) > MaxFieldLength {
			fail(path, "must be at most %d characters", MaxFieldLength)
		}
	}

	if r.Voice != "" && validateVoice != nil && len(r.Voice) <= MaxFieldLength {
		if err := validateVoice(r.Voice); err != nil {
			fail("voice", "%s", err.Error())
		}
	}

	if !slices.Contains(ResponseFormats, r.ResponseFormat) {
		fail("responseFormat", "must be one of %s", strings.Join(ResponseFormats, ", "))
	}

	if r.Chat == nil {
		fail("chat", "is required")
	}
	for i := range r.Chat {
		if err := r.Chat[i].Validate(); err != nil {
			fail(fmt.Sprintf("chat.%d", i), "%s", err.Error())
		}
	}

	var audio []byte
	switch {
	case r.Audio == "":
		fail("audio", "is required")
	case len(r.Audio) > MaxAudioLength:
		fail("audio", "must be at most %d characters", MaxAudioLength)
	default:
		var err error
		if audio, err = base64.StdEncoding.DecodeString(r.Audio); err != nil {
			fail("audio", "must be base64 encoded")
		}
	}

	if len(errs) > 0 {
		slices.SortStableFunc(errs, func(a, b FieldError) int { return strings.Compare(a.Path, b.Path) })
		return usecase.VoiceRequest{}, errs
	}

	return usecase.VoiceRequest{
		SpeakerName:    r.SpeakerName,
		STTModel:       r.STTModel,
		ChatModel:      r.ChatModel,
		TTSModel:       r.TTSModel,
		Voice:          r.Voice,
		Chat:           r.Chat,
		Audio:          audio,
		AudioFormat:    r.AudioFormat,
		ResponseFormat: r.ResponseFormat,
		Transport:      transport,
	}, nil
}
