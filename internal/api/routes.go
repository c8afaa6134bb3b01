package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/internal/auth"
	"github.com/satriahrh/voicerelay/internal/telemetry"
	"github.com/satriahrh/voicerelay/usecase"
)

// Response headers of a voice stream
const (
	HeaderAudioFormat = "X-Voice-Audio-Format"
	// HeaderVoiceError is sent as a trailer when the pipeline fails after
	// frames have started flowing
	HeaderVoiceError = "X-Voice-Error"
)

// Error codes shared by the HTTP and WebSocket transports
const (
	CodeInvalidRequest      = "invalid_request"
	CodeTranscriptionFailed = "transcription_failed"
	CodeGenerationFailed    = "generation_failed"
	CodePipelineFailed      = "pipeline_failed"
	CodeServerShutdown      = "server_shutdown"
)

// ErrorCode maps a pipeline error to its wire code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, usecase.ErrTranscription):
		return CodeTranscriptionFailed
	case errors.Is(err, usecase.ErrGeneration):
		return CodeGenerationFailed
	default:
		return CodePipelineFailed
	}
}

// Routes collects the handlers InitRoutes mounts
type Routes struct {
	Voice     *VoiceHandler
	WebSocket echo.HandlerFunc
	Metrics   http.Handler
	Auth      *auth.Authenticator
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, routes Routes) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": telemetry.ServiceName,
		})
	})

	if routes.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(routes.Metrics))
	}

	var mw []echo.MiddlewareFunc
	if routes.Auth != nil {
		mw = append(mw, routes.Auth.Middleware())
	}

	e.POST("/voice", routes.Voice.Handle, mw...)
	if routes.WebSocket != nil {
		e.GET("/voice/ws", routes.WebSocket, mw...)
	}
}

// VoiceHandler serves POST /voice
type VoiceHandler struct {
	voice         *usecase.VoiceService
	validateVoice VoiceValidator
	metrics       *telemetry.Metrics
	logger        *zap.Logger
}

// NewVoiceHandler creates a new voice handler. validateVoice and metrics may be nil.
func NewVoiceHandler(voice *usecase.VoiceService, validateVoice VoiceValidator, metrics *telemetry.Metrics, logger *zap.Logger) *VoiceHandler {
	return &VoiceHandler{
		voice:         voice,
		validateVoice: validateVoice,
		metrics:       metrics,
		logger:        logger,
	}
}

// Handle runs one voice turn and streams the reply as binary frames
func (h *VoiceHandler) Handle(c echo.Context) error {
	ctx := c.Request().Context()

	var body VoiceRequest
	if err := c.Bind(&body); err != nil {
		h.logger.Warn("Failed to bind voice request", zap.Error(err))
		h.metrics.RecordRequest(ctx, "http", telemetry.OutcomeInvalid)
		return c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Errors: []FieldError{{Path: "body", Message: "invalid JSON body"}},
		})
	}

	req, fieldErrs := body.Parse("http", h.validateVoice)
	if len(fieldErrs) > 0 {
		h.logger.Info("Voice request rejected", zap.Int("errors", len(fieldErrs)))
		h.metrics.RecordRequest(ctx, "http", telemetry.OutcomeInvalid)
		return c.JSON(http.StatusBadRequest, ValidationErrorResponse{Errors: fieldErrs})
	}

	conv, err := h.voice.Start(ctx, req)
	if err != nil {
		h.metrics.RecordRequest(ctx, "http", telemetry.OutcomeUpstreamError)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   ErrorCode(err),
			Message: err.Error(),
		})
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMEOctetStream)
	res.Header().Set(HeaderAudioFormat, conv.Format)
	res.Header().Set("Trailer", HeaderVoiceError)
	res.WriteHeader(http.StatusOK)
	res.Flush()

	err = conv.Stream(ctx, res)
	switch {
	case err == nil:
		h.metrics.RecordRequest(ctx, "http", telemetry.OutcomeOK)
	case errors.Is(err, context.Canceled):
		h.logger.Info("Voice stream cancelled by client", zap.String("requestID", conv.ID))
		h.metrics.RecordRequest(ctx, "http", telemetry.OutcomeClientCancelled)
	default:
		res.Header().Set(HeaderVoiceError, trailerValue(err))
		h.metrics.RecordRequest(ctx, "http", telemetry.OutcomePipelineError)
	}

	// The status line is already on the wire, so errors travel in the trailer.
	return nil
}

func trailerValue(err error) string {
	return strings.Join(strings.Fields(err.Error()), " ")
}
