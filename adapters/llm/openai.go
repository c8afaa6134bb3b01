package llm

import (
	"bufio"
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

	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

const (
	defaultOpenAIBaseURL   = "https://api.openai.com/v1"
	defaultOpenAIChatModel = "gpt-3.5-turbo"
	defaultStreamTimeout   = 2 * time.Minute
)

// OpenAIConfig configures the OpenAI-compatible chat adapter
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	StreamTimeout time.Duration
}

// OpenAILLM streams chat completions from an OpenAI-compatible endpoint
type OpenAILLM struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

var _ repositories.LargeLanguageModel = (*OpenAILLM)(nil)

// NewOpenAILLM creates a new OpenAI chat adapter
func NewOpenAILLM(config OpenAIConfig, logger *zap.Logger) (*OpenAILLM, error) {
	if config.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
		logger.Info("Using default OpenAI base URL", zap.String("baseURL", baseURL))
	}

	model := config.Model
	if model == "" {
		model = defaultOpenAIChatModel
		logger.Info("Using default chat model", zap.String("model", model))
	}

	timeout := config.StreamTimeout
	if timeout == 0 {
		timeout = defaultStreamTimeout
	}

	return &OpenAILLM{
		apiKey:  config.APIKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type chatCompletionRequest struct {
	Model     string                  `json:"model"`
	Messages  []chatCompletionMessage `json:"messages"`
	MaxTokens int                     `json:"max_tokens,omitempty"`
	Stream    bool                    `json:"stream"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// StreamChat opens a streaming completion. Connection and HTTP status errors
// are returned directly; errors after the stream opened arrive as events.
func (o *OpenAILLM) StreamChat(ctx context.Context, messages []entities.ChatMessage, opts repositories.ChatOptions) (<-chan repositories.ChatEvent, error) {
	model := opts.Model
	if model == "" {
		model = o.model
	}

	payload := chatCompletionRequest{
		Model:     model,
		MaxTokens: opts.MaxTokens,
		Stream:    true,
	}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, chatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
			Name:    sanitizeName(m.Name),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	o.logger.Debug("Opening chat completion stream",
		zap.String("model", model),
		zap.Int("messages", len(messages)))

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat completion returned %d: %s", resp.StatusCode, strings.TrimSpace(string(errorBody)))
	}

	events := make(chan repositories.ChatEvent, 16)
	go o.readStream(ctx, resp.Body, events)
	return events, nil
}

func (o *OpenAILLM) readStream(ctx context.Context, body io.ReadCloser, events chan<- repositories.ChatEvent) {
	defer close(events)
	defer body.Close()

	w := &eventWriter{ctx: ctx, events: events}
	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if line != "" && o.handleLine(w, line) {
			return
		}
		if errors.Is(err, io.EOF) {
			w.final()
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				o.logger.Error("Error reading chat stream", zap.Error(err))
			}
			w.fail(fmt.Errorf("read stream: %w", err))
			return
		}
	}
}

// handleLine processes one SSE line and reports whether the stream is over
func (o *OpenAILLM) handleLine(w *eventWriter, line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "[DONE]" {
		w.final()
		return true
	}

	var chunk chatCompletionChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		o.logger.Debug("Skipping malformed stream event", zap.String("data", data))
		return false
	}
	if chunk.Error != nil {
		w.fail(fmt.Errorf("chat completion stream error: %s", chunk.Error.Message))
		return true
	}
	if len(chunk.Choices) == 0 {
		return false
	}
	return !w.content(chunk.Choices[0].Delta.Content)
}

// sanitizeName maps a speaker name onto the character set OpenAI accepts
// for the message name field.
func sanitizeName(name string) string {
	if name == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	s := b.String()
	if len(s) > 64 {
		s = s[:64]
	}
	return s
}
