package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Request outcomes
const (
	OutcomeOK              = "ok"
	OutcomeInvalid         = "invalid"
	OutcomeUnauthorized    = "unauthorized"
	OutcomeUpstreamError   = "upstream_error"
	OutcomePipelineError   = "pipeline_error"
	OutcomeClientCancelled = "cancelled"
)

// Metrics holds the relay instruments. A nil *Metrics records nothing.
type Metrics struct {
	requests   metric.Int64Counter
	frames     metric.Int64Counter
	parts      metric.Int64Counter
	synthesis  metric.Float64Histogram
	firstFrame metric.Float64Histogram
}

// NewMetrics creates the instruments on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	if m.requests, err = meter.Int64Counter("voicerelay.requests",
		metric.WithDescription("Voice requests by transport and outcome")); err != nil {
		return nil, err
	}
	if m.frames, err = meter.Int64Counter("voicerelay.frames",
		metric.WithDescription("Frames written to callers")); err != nil {
		return nil, err
	}
	if m.parts, err = meter.Int64Counter("voicerelay.parts",
		metric.WithDescription("Text parts produced by the segmenter")); err != nil {
		return nil, err
	}
	if m.synthesis, err = meter.Float64Histogram("voicerelay.synthesis.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Latency of a single text-to-speech call")); err != nil {
		return nil, err
	}
	if m.firstFrame, err = meter.Float64Histogram("voicerelay.first_frame.latency",
		metric.WithUnit("s"),
		metric.WithDescription("Time from request start to the first frame on the wire")); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordRequest counts a finished request
func (m *Metrics) RecordRequest(ctx context.Context, transport, outcome string) {
	if m == nil {
		return
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transport", transport),
		attribute.String("outcome", outcome),
	))
}

// AddFrame counts one frame written
func (m *Metrics) AddFrame(ctx context.Context, transport string) {
	if m == nil {
		return
	}
	m.frames.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", transport)))
}

// AddPart counts one text part produced
func (m *Metrics) AddPart(ctx context.Context) {
	if m == nil {
		return
	}
	m.parts.Add(ctx, 1)
}

// RecordSynthesis observes the latency of a text-to-speech call
func (m *Metrics) RecordSynthesis(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.synthesis.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("error", err != nil)))
}

// RecordFirstFrame observes the time to first frame
func (m *Metrics) RecordFirstFrame(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.firstFrame.Record(ctx, d.Seconds())
}
