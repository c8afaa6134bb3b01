package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr() != "127.0.0.1:8001" {
		t.Errorf("Addr() = %q, want 127.0.0.1:8001", cfg.Server.Addr())
	}
	if cfg.Server.CORSOrigin != "*" {
		t.Errorf("CORSOrigin = %q, want *", cfg.Server.CORSOrigin)
	}
	if cfg.Pipeline.MaxResponseTokens != 2000 {
		t.Errorf("MaxResponseTokens = %d, want 2000", cfg.Pipeline.MaxResponseTokens)
	}
	if cfg.Pipeline.SystemPromptPostfix != DefaultSystemPromptPostfix {
		t.Errorf("SystemPromptPostfix = %q", cfg.Pipeline.SystemPromptPostfix)
	}
	if cfg.Pipeline.PartDelimiter != "\n\n" {
		t.Errorf("PartDelimiter = %q, want blank line", cfg.Pipeline.PartDelimiter)
	}
	if cfg.Backends.LLM != "openai" {
		t.Errorf("LLM backend = %q, want openai", cfg.Backends.LLM)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("MAX_RESPONSE_TOKENS", "512")
	t.Setenv("LLM_BACKEND", "mock")
	t.Setenv("TTS_BACKEND", "elevenlabs")
	t.Setenv("ELEVEN_LABS_STABILITY", "0.3")
	t.Setenv("DEBUG", "true")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr() != "0.0.0.0:9100" {
		t.Errorf("Addr() = %q", cfg.Server.Addr())
	}
	if cfg.Pipeline.MaxResponseTokens != 512 {
		t.Errorf("MaxResponseTokens = %d, want 512", cfg.Pipeline.MaxResponseTokens)
	}
	if cfg.Backends.LLM != "mock" || cfg.Backends.TTS != "elevenlabs" {
		t.Errorf("Backends = %+v", cfg.Backends)
	}
	if cfg.Eleven.Stability != 0.3 {
		t.Errorf("Eleven.Stability = %v, want 0.3", cfg.Eleven.Stability)
	}
	if !cfg.Logging.Debug {
		t.Error("Logging.Debug = false, want true")
	}
	if cfg.Server.JWTSecret != "s3cret" {
		t.Errorf("JWTSecret = %q", cfg.Server.JWTSecret)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicerelay.yaml")
	content := "port: 7001\nstt_backend: google\nstt_language: id-ID\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STT_LANGUAGE", "ja-JP")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7001 {
		t.Errorf("Port = %d, want 7001", cfg.Server.Port)
	}
	if cfg.Backends.STT != "google" {
		t.Errorf("STT backend = %q, want google", cfg.Backends.STT)
	}
	if cfg.Google.Language != "ja-JP" {
		t.Errorf("Language = %q, environment should win over file", cfg.Google.Language)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad port", "PORT", "70000"},
		{"bad tokens", "MAX_RESPONSE_TOKENS", "0"},
		{"bad llm backend", "LLM_BACKEND", "eliza"},
		{"bad tts backend", "TTS_BACKEND", "gemini"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(""); err == nil {
				t.Errorf("Load() with %s=%s should fail", tt.key, tt.val)
			}
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() with a missing explicit config file should fail")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name string
		cfg  LoggingConfig
		want zapcore.Level
	}{
		{"production default", LoggingConfig{Env: "production"}, zapcore.InfoLevel},
		{"explicit level", LoggingConfig{Level: "warn"}, zapcore.WarnLevel},
		{"debug flag wins", LoggingConfig{Level: "error", Debug: true}, zapcore.DebugLevel},
		{"development", LoggingConfig{Env: "development", Level: "info"}, zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			if !logger.Core().Enabled(tt.want) {
				t.Errorf("level %s should be enabled", tt.want)
			}
			if tt.want > zapcore.DebugLevel && logger.Core().Enabled(tt.want-1) {
				t.Errorf("level %s should be disabled", tt.want-1)
			}
		})
	}

	if _, err := NewLogger(LoggingConfig{Level: "loud"}); err == nil {
		t.Error("NewLogger() with invalid level should fail")
	}
}
