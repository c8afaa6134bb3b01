package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/adapters/llm"
	"github.com/satriahrh/voicerelay/adapters/stt"
	"github.com/satriahrh/voicerelay/adapters/tts"
	"github.com/satriahrh/voicerelay/domain/repositories"
	"github.com/satriahrh/voicerelay/internal/api"
	"github.com/satriahrh/voicerelay/internal/auth"
	"github.com/satriahrh/voicerelay/internal/config"
	"github.com/satriahrh/voicerelay/internal/telemetry"
	"github.com/satriahrh/voicerelay/internal/websocket"
	"github.com/satriahrh/voicerelay/usecase"
)

func main() {
	configFile := flag.String("config", "", "optional config file (yaml, json, toml)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Initialize logger
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, cfg.Logging.Env, logger)
	if err != nil {
		logger.Fatal("Failed to set up telemetry", zap.Error(err))
	}

	// Initialize adapters
	speechToText, closeSTT, err := newSpeechToText(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize speech-to-text", zap.String("backend", cfg.Backends.STT), zap.Error(err))
	}
	defer closeSTT()

	languageModel, err := newLanguageModel(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize language model", zap.String("backend", cfg.Backends.LLM), zap.Error(err))
	}

	textToSpeech, validateVoice, err := newTextToSpeech(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize text-to-speech", zap.String("backend", cfg.Backends.TTS), zap.Error(err))
	}

	// Initialize usecase services
	chatService := usecase.NewChatService(cfg.Pipeline.SystemPromptPostfix, logger)
	voiceService := usecase.NewVoiceService(speechToText, languageModel, textToSpeech, chatService,
		usecase.VoiceServiceConfig{
			Delimiter:         cfg.Pipeline.PartDelimiter,
			MaxResponseTokens: cfg.Pipeline.MaxResponseTokens,
			Language:          cfg.Google.Language,
		}, tel.Metrics, logger)

	hub := websocket.NewHub(voiceService, validateVoice, tel.Metrics, cfg.Server.CORSOrigin, logger)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{cfg.Server.CORSOrigin},
		ExposeHeaders: []string{api.HeaderAudioFormat, api.HeaderVoiceError},
	}))
	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	e.Use(requestLogger(logger))

	var authn *auth.Authenticator
	if cfg.Server.JWTSecret != "" {
		authn = auth.NewAuthenticator(cfg.Server.JWTSecret, logger)
		logger.Info("JWT authentication enabled for voice endpoints")
	}

	// Initialize API routes
	api.InitRoutes(e, api.Routes{
		Voice:     api.NewVoiceHandler(voiceService, validateVoice, tel.Metrics, logger),
		WebSocket: hub.Handle,
		Metrics:   tel.Handler(),
		Auth:      authn,
	})

	// Graceful shutdown
	go func() {
		if err := e.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("stt", cfg.Backends.STT),
		zap.String("llm", cfg.Backends.LLM),
		zap.String("tts", cfg.Backends.TTS))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Warn("WebSocket streams did not finish in time", zap.Error(err))
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Telemetry shutdown failed", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newSpeechToText(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SpeechToText, func(), error) {
	noop := func() {}
	switch cfg.Backends.STT {
	case "google":
		g, err := stt.NewGoogleSpeechToText(ctx, stt.GoogleConfig{
			CredentialsFile: cfg.Google.CredentialsFile,
			Language:        cfg.Google.Language,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		return g, func() {
			if err := g.Close(); err != nil {
				logger.Warn("Failed to close speech client", zap.Error(err))
			}
		}, nil
	case "mock":
		return stt.NewMockSpeechToText(logger), noop, nil
	default:
		s, err := stt.NewOpenAISpeechToText(stt.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
		}, logger)
		return s, noop, err
	}
}

func newLanguageModel(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.LargeLanguageModel, error) {
	switch cfg.Backends.LLM {
	case "gemini":
		return llm.NewGeminiLLM(ctx, llm.GeminiConfig{
			APIKey: cfg.Gemini.APIKey,
			Model:  cfg.Gemini.Model,
		}, logger)
	case "mock":
		return llm.NewMockLLM(), nil
	default:
		return llm.NewOpenAILLM(llm.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
		}, logger)
	}
}

func newTextToSpeech(cfg *config.Config, logger *zap.Logger) (repositories.TextToSpeech, api.VoiceValidator, error) {
	switch cfg.Backends.TTS {
	case "elevenlabs":
		el, err := tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:       cfg.Eleven.APIKey,
			APIBaseURL:   cfg.Eleven.APIBaseURL,
			VoiceID:      cfg.Eleven.VoiceID,
			ModelID:      cfg.Eleven.ModelID,
			OutputFormat: cfg.Eleven.OutputFormat,
			Stability:    cfg.Eleven.Stability,
			Clarity:      cfg.Eleven.Clarity,
		}, logger)
		return el, nil, err
	case "mock":
		return tts.NewMockTextToSpeech(logger), nil, nil
	default:
		o, err := tts.NewOpenAITTS(tts.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
		}, logger)
		return o, tts.ValidateOpenAIVoice, err
	}
}

// requestLogger routes echo's request log through zap
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remoteIP", v.RemoteIP),
			}
			if v.Error != nil {
				logger.Warn("Request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("Request", fields...)
			return nil
		},
	})
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-config file]\n\nVoice relay server. Settings come from .env, the config file and the environment.\n", os.Args[0])
		flag.PrintDefaults()
	}
}
