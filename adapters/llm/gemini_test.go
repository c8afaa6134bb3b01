package llm

import (
	"context"
	"os"
	"testing"

	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"

	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

func TestConvertToGeminiFormat(t *testing.T) {
	system, contents := convertToGeminiFormat([]entities.ChatMessage{
		{Role: entities.SystemRole, Content: "be kind"},
		{Role: entities.UserRole, Content: "hi"},
		{Role: entities.AssistantRole, Content: "hello"},
		{Role: entities.SystemRole, Content: "be brief"},
		{Role: entities.UserRole, Content: "bye"},
	})

	if system != "be kind\n\nbe brief" {
		t.Errorf("system = %q", system)
	}
	wantRoles := []string{string(genai.RoleUser), string(genai.RoleModel), string(genai.RoleUser)}
	if len(contents) != len(wantRoles) {
		t.Fatalf("got %d contents, want %d", len(contents), len(wantRoles))
	}
	for i, c := range contents {
		if c.Role != wantRoles[i] {
			t.Errorf("content %d role = %q, want %q", i, c.Role, wantRoles[i])
		}
	}
}

func TestValidateGeminiConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  GeminiConfig
		wantErr bool
	}{
		{"missing key", GeminiConfig{}, true},
		{"valid", GeminiConfig{APIKey: "k"}, false},
		{"bad topP", GeminiConfig{APIKey: "k", TopP: 1.5}, true},
		{"bad temperature", GeminiConfig{APIKey: "k", Temperature: 3}, true},
		{"negative timeout", GeminiConfig{APIKey: "k", TimeoutSeconds: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateGeminiConfig(tt.config); (err != nil) != tt.wantErr {
				t.Errorf("ValidateGeminiConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGeminiLLM_StreamChatIntegration(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping integration test: GEMINI_API_KEY not set")
	}

	g, err := NewGeminiLLM(context.Background(), GeminiConfig{APIKey: apiKey}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewGeminiLLM() error = %v", err)
	}
	events, err := g.StreamChat(context.Background(), []entities.ChatMessage{
		{Role: entities.SystemRole, Content: "Answer in two short paragraphs separated by a blank line."},
		{Role: entities.UserRole, Content: "What is a frame decoder?"},
	}, repositories.ChatOptions{MaxTokens: 200})
	if err != nil {
		t.Fatalf("StreamChat() error = %v", err)
	}
	got := drain(t, events)
	if last := got[len(got)-1]; last.Type != repositories.ChatEventFinal || last.Snapshot == "" {
		t.Errorf("final event = %+v", last)
	}
}
