// Package config loads the relay configuration from an optional .env file,
// an optional config file and the process environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Default system prompt postfix appended to the caller's system message
const DefaultSystemPromptPostfix = "\n\nUse short paragraphs. Separate paragraphs in your response with a blank line."

// Config is the root configuration of the relay server
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Pipeline  PipelineConfig
	Backends  BackendsConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Google    GoogleConfig
	Eleven    ElevenLabsConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	CORSOrigin string `mapstructure:"cors_origin"`
	JWTSecret  string `mapstructure:"jwt_secret"`
	BodyLimit  string `mapstructure:"body_limit"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// LoggingConfig selects the zap configuration
type LoggingConfig struct {
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
	Level string `mapstructure:"log_level"`
}

// PipelineConfig tunes the streaming pipeline
type PipelineConfig struct {
	SystemPromptPostfix string `mapstructure:"system_prompt_postfix"`
	MaxResponseTokens   int    `mapstructure:"max_response_tokens"`
	PartDelimiter       string `mapstructure:"part_delimiter"`
	MaxFieldSize        int    `mapstructure:"max_field_size"`
}

// BackendsConfig selects the collaborator implementation per concern
type BackendsConfig struct {
	STT string `mapstructure:"stt_backend"` // openai, google, mock
	LLM string `mapstructure:"llm_backend"` // openai, gemini, mock
	TTS string `mapstructure:"tts_backend"` // openai, elevenlabs, mock
}

// OpenAIConfig holds OpenAI-compatible API settings
type OpenAIConfig struct {
	APIKey  string `mapstructure:"openai_api_key"`
	BaseURL string `mapstructure:"openai_base_url"`
}

// GeminiConfig holds Gemini API settings
type GeminiConfig struct {
	APIKey string `mapstructure:"gemini_api_key"`
	Model  string `mapstructure:"gemini_model"`
}

// GoogleConfig holds Google Cloud Speech settings
type GoogleConfig struct {
	CredentialsFile string `mapstructure:"google_application_credentials"`
	Language        string `mapstructure:"stt_language"`
}

// ElevenLabsConfig holds Eleven Labs settings
type ElevenLabsConfig struct {
	APIKey       string  `mapstructure:"eleven_labs_api_key"`
	APIBaseURL   string  `mapstructure:"eleven_labs_api_base_url"`
	VoiceID      string  `mapstructure:"eleven_labs_voice_id"`
	ModelID      string  `mapstructure:"eleven_labs_model_id"`
	OutputFormat string  `mapstructure:"eleven_labs_output_format"`
	Stability    float64 `mapstructure:"eleven_labs_stability"`
	Clarity      float64 `mapstructure:"eleven_labs_clarity"`
}

// TelemetryConfig controls trace export
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otel_exporter_otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otel_exporter_otlp_insecure"`
	TraceStdout  bool   `mapstructure:"trace_stdout"`
}

var defaults = map[string]any{
	"host":        "127.0.0.1",
	"port":        8001,
	"cors_origin": "*",
	"jwt_secret":  "",
	"body_limit":  "2M",

	"env":       "production",
	"debug":     false,
	"log_level": "info",

	"system_prompt_postfix": DefaultSystemPromptPostfix,
	"max_response_tokens":   2000,
	"part_delimiter":        "\n\n",
	"max_field_size":        64 << 20,

	"stt_backend": "openai",
	"llm_backend": "openai",
	"tts_backend": "openai",

	"openai_api_key":  "",
	"openai_base_url": "https://api.openai.com/v1",

	"gemini_api_key": "",
	"gemini_model":   "gemini-2.0-flash",

	"google_application_credentials": "",
	"stt_language":                   "en-US",

	"eleven_labs_api_key":       "",
	"eleven_labs_api_base_url":  "",
	"eleven_labs_voice_id":      "",
	"eleven_labs_model_id":      "",
	"eleven_labs_output_format": "",
	"eleven_labs_stability":     0.0,
	"eleven_labs_clarity":       0.0,

	"otel_exporter_otlp_endpoint": "",
	"otel_exporter_otlp_insecure": false,
	"trace_stdout":                false,
}

// Load reads .env (if present), then configFile (if non-empty), then the
// environment. Environment variables win over the file, the file over defaults.
func Load(configFile string) (*Config, error) {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	sections := []struct {
		name   string
		target any
	}{
		{"server", &cfg.Server},
		{"logging", &cfg.Logging},
		{"pipeline", &cfg.Pipeline},
		{"backends", &cfg.Backends},
		{"openai", &cfg.OpenAI},
		{"gemini", &cfg.Gemini},
		{"google", &cfg.Google},
		{"eleven labs", &cfg.Eleven},
		{"telemetry", &cfg.Telemetry},
	}
	for _, s := range sections {
		if err := v.Unmarshal(s.target); err != nil {
			return nil, fmt.Errorf("unmarshalling %s config: %w", s.name, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late at request time
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Pipeline.MaxResponseTokens <= 0 {
		errs = append(errs, fmt.Errorf("MAX_RESPONSE_TOKENS must be positive, got %d", c.Pipeline.MaxResponseTokens))
	}
	if c.Pipeline.PartDelimiter == "" {
		errs = append(errs, errors.New("PART_DELIMITER must not be empty"))
	}
	if c.Pipeline.MaxFieldSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_FIELD_SIZE must be positive, got %d", c.Pipeline.MaxFieldSize))
	}
	if !oneOf(c.Backends.STT, "openai", "google", "mock") {
		errs = append(errs, fmt.Errorf("STT_BACKEND must be one of openai, google, mock, got %q", c.Backends.STT))
	}
	if !oneOf(c.Backends.LLM, "openai", "gemini", "mock") {
		errs = append(errs, fmt.Errorf("LLM_BACKEND must be one of openai, gemini, mock, got %q", c.Backends.LLM))
	}
	if !oneOf(c.Backends.TTS, "openai", "elevenlabs", "mock") {
		errs = append(errs, fmt.Errorf("TTS_BACKEND must be one of openai, elevenlabs, mock, got %q", c.Backends.TTS))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether the development logger should be used
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Logging.Env, "development")
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
