package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain"
	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/domain/repositories"
	"github.com/satriahrh/voicerelay/internal/frame"
	"github.com/satriahrh/voicerelay/internal/segmenter"
	"github.com/satriahrh/voicerelay/internal/synthesis"
	"github.com/satriahrh/voicerelay/internal/telemetry"
)

var (
	// ErrTranscription marks a failure to transcribe the caller's audio
	ErrTranscription = errors.New("transcription failed")
	// ErrGeneration marks a failure to open the text generation stream
	ErrGeneration = errors.New("generation failed")
)

// VoiceRequest is a validated voice turn
type VoiceRequest struct {
	SpeakerName    string
	STTModel       string
	ChatModel      string
	TTSModel       string
	Voice          string
	Chat           []entities.ChatMessage
	Audio          []byte
	AudioFormat    string
	ResponseFormat string
	// Transport labels metrics and logs, e.g. "http" or "ws"
	Transport string
}

// VoiceServiceConfig tunes the pipeline
type VoiceServiceConfig struct {
	Delimiter         string
	MaxResponseTokens int
	Language          string
}

// VoiceService runs the transcribe, generate, segment, synthesize pipeline
type VoiceService struct {
	speechToText repositories.SpeechToText
	llm          repositories.LargeLanguageModel
	textToSpeech repositories.TextToSpeech
	chatService  *ChatService
	config       VoiceServiceConfig
	metrics      *telemetry.Metrics
	tracer       trace.Tracer
	logger       *zap.Logger
}

// NewVoiceService creates a new voice service. metrics may be nil.
func NewVoiceService(
	stt repositories.SpeechToText,
	llm repositories.LargeLanguageModel,
	tts repositories.TextToSpeech,
	chatService *ChatService,
	config VoiceServiceConfig,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *VoiceService {
	if config.Delimiter == "" {
		config.Delimiter = segmenter.DefaultDelimiter
	}
	return &VoiceService{
		speechToText: stt,
		llm:          llm,
		textToSpeech: tts,
		chatService:  chatService,
		config:       config,
		metrics:      metrics,
		tracer:       otel.Tracer("github.com/satriahrh/voicerelay/usecase"),
		logger:       logger,
	}
}

// Conversation is a voice turn whose generation stream is open and ready to
// be relayed. Stream must be called exactly once, or Abort to release it.
type Conversation struct {
	ID            string
	Transcription string
	Format        string

	service   *VoiceService
	request   VoiceRequest
	events    <-chan repositories.ChatEvent
	genCtx    context.Context
	cancelGen context.CancelFunc
	started   time.Time
	logger    *zap.Logger
}

// Start transcribes the caller's audio and opens the generation stream.
// Errors wrap ErrTranscription or ErrGeneration; nothing has been written to
// the caller when Start fails.
func (s *VoiceService) Start(ctx context.Context, req VoiceRequest) (*Conversation, error) {
	started := time.Now()
	id := uuid.NewString()
	logger := s.logger.With(zap.String("requestID", id), zap.String("transport", req.Transport))

	logger.Info("Processing voice request",
		zap.String("speakerName", req.SpeakerName),
		zap.Int("audioSize", len(req.Audio)),
		zap.String("audioFormat", req.AudioFormat),
		zap.Int("chatLength", len(req.Chat)))

	transcription, err := s.transcribe(ctx, req)
	if err != nil {
		logger.Error("Transcription failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	logger.Info("Transcription completed", zap.String("text", transcription))

	messages := s.chatService.PrepareMessages(req.Chat, transcription, req.SpeakerName)

	genCtx, cancelGen := context.WithCancel(ctx)
	events, err := s.llm.StreamChat(genCtx, messages, repositories.ChatOptions{
		Model:     req.ChatModel,
		MaxTokens: s.config.MaxResponseTokens,
	})
	if err != nil {
		cancelGen()
		logger.Error("Failed to open generation stream", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	return &Conversation{
		ID:            id,
		Transcription: transcription,
		Format:        req.ResponseFormat,
		service:       s,
		request:       req,
		events:        events,
		genCtx:        genCtx,
		cancelGen:     cancelGen,
		started:       started,
		logger:        logger,
	}, nil
}

func (s *VoiceService) transcribe(ctx context.Context, req VoiceRequest) (string, error) {
	ctx, span := s.tracer.Start(ctx, "voice.transcribe", trace.WithAttributes(
		attribute.Int("audio.bytes", len(req.Audio)),
		attribute.String("audio.format", req.AudioFormat),
	))
	defer span.End()

	text, err := s.speechToText.TranscribeAudio(ctx, req.Audio, repositories.AudioConfig{
		Format:   req.AudioFormat,
		Language: s.config.Language,
		Model:    req.STTModel,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("transcription.length", len(text)))
	return text, nil
}

// Abort releases the generation stream without relaying it
func (c *Conversation) Abort() {
	c.cancelGen()
}

// Stream relays the reply to w, one frame per text part, in the order the
// parts were generated. Every frame carries the transcription as its query.
// It returns nil once the final frame has been written.
func (c *Conversation) Stream(ctx context.Context, w io.Writer) error {
	defer c.cancelGen()

	s := c.service
	ctx, span := s.tracer.Start(ctx, "voice.generate", trace.WithAttributes(
		attribute.String("request.id", c.ID),
		attribute.String("transport", c.request.Transport),
	))
	defer span.End()

	encoder := frame.NewEncoder(w, c.Transcription)
	stage := synthesis.NewStage(s.textToSpeech, repositories.VoiceConfig{
		Model:  c.request.TTSModel,
		Voice:  c.request.Voice,
		Format: c.request.ResponseFormat,
	}, c.logger, synthesis.WithRecorder(s.metrics))
	seg := segmenter.New(s.config.Delimiter, c.logger)

	genDone := make(chan error, 1)
	go func() {
		defer stage.CloseQueue()
		genDone <- seg.Consume(c.genCtx, c.events, func(part domain.TextPart) error {
			s.metrics.AddPart(ctx)
			return stage.Enqueue(part)
		})
	}()

	stageErr := stage.Run(ctx, func(result domain.SynthesisResult) error {
		if err := encoder.WriteResult(result); err != nil {
			return err
		}
		if encoder.Frames() == 1 {
			s.metrics.RecordFirstFrame(ctx, time.Since(c.started))
		}
		s.metrics.AddFrame(ctx, c.request.Transport)
		return nil
	})
	if stageErr != nil {
		c.cancelGen()
	}
	genErr := <-genDone

	err := stageErr
	if err == nil && genErr != nil {
		err = fmt.Errorf("generation: %w", genErr)
	}

	span.SetAttributes(
		attribute.Int("frames", encoder.Frames()),
		attribute.Int64("bytes", encoder.BytesWritten()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("Voice stream failed",
			zap.Int("frames", encoder.Frames()),
			zap.Duration("elapsed", time.Since(c.started)),
			zap.Error(err))
		return err
	}

	c.logger.Info("Voice stream completed",
		zap.Int("frames", encoder.Frames()),
		zap.Int64("bytes", encoder.BytesWritten()),
		zap.Duration("elapsed", time.Since(c.started)))
	return nil
}
