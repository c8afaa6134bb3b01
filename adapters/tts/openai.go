package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain/repositories"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "tts-1"
	defaultOpenAIVoice   = "nova"
	defaultOpenAIFormat  = "mp3"
	defaultOpenAITimeout = 90 * time.Second
)

// OpenAIVoices lists the voices accepted by the speech endpoint
var OpenAIVoices = []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"}

// OpenAIConfig configures the OpenAI speech adapter
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Voice   string
	Speed   float64
}

// OpenAITTS synthesizes speech with the OpenAI /audio/speech endpoint
type OpenAITTS struct {
	apiKey  string
	baseURL string
	model   string
	voice   string
	speed   float64
	client  *http.Client
	logger  *zap.Logger
}

var _ repositories.TextToSpeech = (*OpenAITTS)(nil)

type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// NewOpenAITTS creates a new OpenAI speech adapter
func NewOpenAITTS(config OpenAIConfig, logger *zap.Logger) (*OpenAITTS, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := config.Model
	if model == "" {
		model = defaultOpenAIModel
		logger.Info("Using default speech model", zap.String("model", model))
	}
	voice := config.Voice
	if voice == "" {
		voice = defaultOpenAIVoice
		logger.Info("Using default voice", zap.String("voice", voice))
	}
	if err := ValidateOpenAIVoice(voice); err != nil {
		return nil, err
	}

	return &OpenAITTS{
		apiKey:  config.APIKey,
		baseURL: baseURL,
		model:   model,
		voice:   voice,
		speed:   config.Speed,
		client:  &http.Client{Timeout: defaultOpenAITimeout},
		logger:  logger,
	}, nil
}

// ValidateOpenAIVoice reports an error for voices the endpoint rejects
func ValidateOpenAIVoice(voice string) error {
	for _, v := range OpenAIVoices {
		if v == voice {
			return nil
		}
	}
	return fmt.Errorf("voice must be one of %s, got %q", strings.Join(OpenAIVoices, ", "), voice)
}

// ConvertTextToSpeech converts text to audio bytes
func (o *OpenAITTS) ConvertTextToSpeech(ctx context.Context, text string, config repositories.VoiceConfig) (*repositories.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	voice := o.voice
	if config.Voice != "" {
		if err := ValidateOpenAIVoice(config.Voice); err != nil {
			return nil, err
		}
		voice = config.Voice
	}
	model := o.model
	if config.Model != "" {
		model = config.Model
	}
	format := config.Format
	if format == "" {
		format = defaultOpenAIFormat
	}

	body, err := json.Marshal(speechRequest{
		Model:          model,
		Input:          text,
		Voice:          voice,
		ResponseFormat: format,
		Speed:          o.speed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("openai error %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	audioBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}

	o.logger.Debug("Speech synthesized",
		zap.String("model", model),
		zap.String("voice", voice),
		zap.String("format", format),
		zap.Int("textLength", len(text)),
		zap.Int("audioSize", len(audioBytes)),
		zap.Duration("elapsed", time.Since(start)))

	return &repositories.Audio{Data: audioBytes, Format: format}, nil
}
