package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

const (
	defaultGeminiModel    = "gemini-2.0-flash"
	defaultTemperature    = 0.7
	defaultTopP           = 0.95
	defaultTopK           = 40
	defaultTimeoutSeconds = 60
)

// GeminiConfig holds configuration for the Gemini adapter
type GeminiConfig struct {
	APIKey         string
	Model          string
	Temperature    float32
	TopP           float32
	TopK           float32
	TimeoutSeconds int
}

// GeminiLLM implements the LargeLanguageModel interface using Google's Gemini API
type GeminiLLM struct {
	client         *genai.Client
	logger         *zap.Logger
	model          string
	temperature    float32
	topP           float32
	topK           float32
	timeoutSeconds int
}

var _ repositories.LargeLanguageModel = (*GeminiLLM)(nil)

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return errors.New("Gemini API key is required")
	}

	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}

	if config.TopP != 0 && (config.TopP < 0 || config.TopP > 1) {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}

	if config.TopK < 0 {
		return fmt.Errorf("topK must be positive, got %f", config.TopK)
	}

	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}

	return nil
}

// NewGeminiLLM creates a new Gemini LLM instance
func NewGeminiLLM(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiLLM, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
		logger.Info("Using default model", zap.String("model", model))
	}

	temperature := config.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}
	topP := config.TopP
	if topP == 0 {
		topP = defaultTopP
	}
	topK := config.TopK
	if topK == 0 {
		topK = defaultTopK
	}
	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &GeminiLLM{
		client:         client,
		logger:         logger,
		model:          model,
		temperature:    temperature,
		topP:           topP,
		topK:           topK,
		timeoutSeconds: timeoutSeconds,
	}, nil
}

// StreamChat streams a reply for the history. System messages become the
// system instruction; the remaining messages are sent as contents.
func (g *GeminiLLM) StreamChat(ctx context.Context, messages []entities.ChatMessage, opts repositories.ChatOptions) (<-chan repositories.ChatEvent, error) {
	system, contents := convertToGeminiFormat(messages)
	if len(contents) == 0 {
		return nil, errors.New("at least one user or assistant message is required")
	}

	model := opts.Model
	if model == "" {
		model = g.model
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
		TopP:        genai.Ptr(g.topP),
		TopK:        genai.Ptr(g.topK),
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	events := make(chan repositories.ChatEvent, 16)
	go func() {
		defer close(events)

		ctx, cancel := context.WithTimeout(ctx, time.Duration(g.timeoutSeconds)*time.Second)
		defer cancel()

		w := &eventWriter{ctx: ctx, events: events}
		for resp, err := range g.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				if ctx.Err() == nil {
					g.logger.Error("Gemini stream failed", zap.Error(err))
				}
				w.fail(fmt.Errorf("gemini stream: %w", err))
				return
			}
			if !w.content(responseText(resp)) {
				return
			}
		}

		g.logger.Debug("Gemini stream finished",
			zap.String("model", model),
			zap.Int("length", w.snapshot.Len()))
		w.final()
	}()

	return events, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	return text.String()
}

// convertToGeminiFormat splits the history into a system instruction and
// Gemini contents. Assistant messages map to the model role.
func convertToGeminiFormat(messages []entities.ChatMessage) (string, []*genai.Content) {
	var system []string
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case entities.SystemRole:
			system = append(system, msg.Content)
		case entities.AssistantRole:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	return strings.Join(system, "\n\n"), contents
}
