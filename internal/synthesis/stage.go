// Package synthesis converts text parts to audio one at a time, preserving
// the order in which the parts were produced.
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

// Recorder receives the outcome of each synthesis call
type Recorder interface {
	RecordSynthesis(ctx context.Context, duration time.Duration, err error)
}

// Option configures a Stage
type Option func(*Stage)

// WithRecorder reports synthesis timings to r
func WithRecorder(r Recorder) Option {
	return func(s *Stage) { s.recorder = r }
}

// Stage owns the FIFO of pending parts and a single synthesis slot.
// A part is only dequeued after the previous result has been emitted, so
// results leave the stage in production order regardless of call latency.
type Stage struct {
	tts      repositories.TextToSpeech
	voice    repositories.VoiceConfig
	queue    *Queue
	logger   *zap.Logger
	tracer   trace.Tracer
	recorder Recorder
}

// NewStage creates a stage that synthesizes with tts using voice
func NewStage(tts repositories.TextToSpeech, voice repositories.VoiceConfig, logger *zap.Logger, opts ...Option) *Stage {
	s := &Stage{
		tts:    tts,
		voice:  voice,
		queue:  NewQueue(),
		logger: logger,
		tracer: otel.Tracer("github.com/satriahrh/voicerelay/internal/synthesis"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue adds a part to the tail of the queue. It never blocks.
func (s *Stage) Enqueue(part domain.TextPart) error {
	return s.queue.Push(part)
}

// CloseQueue tells the stage no more parts will arrive
func (s *Stage) CloseQueue() {
	s.queue.Close()
}

// Run processes queued parts until the final part has been emitted, the
// queue is closed and drained, a synthesis or emit call fails, or ctx is
// done. A result produced after ctx is done is discarded.
func (s *Stage) Run(ctx context.Context, emit func(domain.SynthesisResult) error) error {
	for {
		part, ok, err := s.queue.Pop(ctx)
		if err != nil {
			return err
		}
		if !ok {
			s.logger.Info("Synthesis queue drained before final part")
			return nil
		}

		result, err := s.synthesize(ctx, part)
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.logger.Debug("Discarding synthesis result after cancellation", zap.Int("index", part.Index))
			return ctxErr
		}
		if err != nil {
			return fmt.Errorf("synthesize part %d: %w", part.Index, err)
		}

		if err := emit(result); err != nil {
			return fmt.Errorf("emit part %d: %w", part.Index, err)
		}

		if part.IsFinal {
			return nil
		}
	}
}

func (s *Stage) synthesize(ctx context.Context, part domain.TextPart) (domain.SynthesisResult, error) {
	result := domain.SynthesisResult{Part: part, Format: s.voice.Format}
	if strings.TrimSpace(part.Text) == "" {
		return result, nil
	}

	ctx, span := s.tracer.Start(ctx, "synthesis.part", trace.WithAttributes(
		attribute.Int("part.index", part.Index),
		attribute.Int("part.length", len(part.Text)),
		attribute.Bool("part.final", part.IsFinal),
	))
	defer span.End()

	start := time.Now()
	audio, err := s.tts.ConvertTextToSpeech(ctx, part.Text, s.voice)
	elapsed := time.Since(start)
	if s.recorder != nil {
		s.recorder.RecordSynthesis(ctx, elapsed, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("Synthesis failed",
			zap.Int("index", part.Index),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return domain.SynthesisResult{}, err
	}

	if audio != nil {
		result.Audio = audio.Data
		if audio.Format != "" {
			result.Format = audio.Format
		}
	}
	span.SetAttributes(attribute.Int("audio.bytes", len(result.Audio)))

	s.logger.Debug("Part synthesized",
		zap.Int("index", part.Index),
		zap.Int("audioSize", len(result.Audio)),
		zap.Duration("elapsed", elapsed))
	return result, nil
}
