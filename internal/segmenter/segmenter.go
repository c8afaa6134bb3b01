// Package segmenter cuts a cumulative text-generation stream into
// delimiter-bounded parts as soon as each boundary is seen.
package segmenter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain"
	"github.com/satriahrh/voicerelay/domain/repositories"
)

// DefaultDelimiter separates paragraphs in a generated reply
const DefaultDelimiter = "\n\n"

// ErrStreamAborted is returned when the generation stream closes without a
// final or error event.
var ErrStreamAborted = errors.New("generation stream ended before completion")

// Splitter tracks the boundary state for a single reply. It is not safe for
// concurrent use; feed it snapshots in delivery order.
type Splitter struct {
	delimiter     string
	nextPartStart int
	nextIndex     int
	done          bool
}

// NewSplitter creates a splitter for delimiter, falling back to
// DefaultDelimiter when it is empty.
func NewSplitter(delimiter string) *Splitter {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return &Splitter{delimiter: delimiter}
}

// Push inspects a cumulative snapshot and returns the newly completed part,
// if the snapshot introduced a delimiter past everything emitted so far.
func (s *Splitter) Push(snapshot string) (domain.TextPart, bool) {
	if s.done {
		return domain.TextPart{}, false
	}
	idx := strings.LastIndex(snapshot, s.delimiter)
	if idx < 0 {
		return domain.TextPart{}, false
	}
	end := idx + len(s.delimiter)
	if end <= s.nextPartStart {
		return domain.TextPart{}, false
	}
	part := domain.TextPart{Index: s.nextIndex, Text: snapshot[s.nextPartStart:end]}
	s.nextPartStart = end
	s.nextIndex++
	return part, true
}

// Finish returns the remaining suffix of the completed text as the final
// part. The part may be empty. Subsequent calls to Push or Finish are no-ops.
func (s *Splitter) Finish(text string) (domain.TextPart, bool) {
	if s.done {
		return domain.TextPart{}, false
	}
	s.done = true
	rest := ""
	if s.nextPartStart < len(text) {
		rest = text[s.nextPartStart:]
	}
	return domain.TextPart{Index: s.nextIndex, Text: rest, IsFinal: true}, true
}

// Segmenter turns a generation event stream into ordered text parts
type Segmenter struct {
	delimiter string
	logger    *zap.Logger
}

// New creates a new segmenter
func New(delimiter string, logger *zap.Logger) *Segmenter {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return &Segmenter{delimiter: delimiter, logger: logger}
}

// Consume drains events and calls emit for every completed part, in order.
// It returns nil once the final part has been emitted, the stream's error if
// generation failed, ErrStreamAborted if the channel closed early, or the
// context error.
func (s *Segmenter) Consume(ctx context.Context, events <-chan repositories.ChatEvent, emit func(domain.TextPart) error) error {
	splitter := NewSplitter(s.delimiter)
	var latest string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				s.logger.Warn("Generation stream closed without final event",
					zap.Int("emittedBytes", splitter.nextPartStart))
				return ErrStreamAborted
			}

			switch ev.Type {
			case repositories.ChatEventError:
				err := ev.Err
				if err == nil {
					err = errors.New("unknown generation error")
				}
				return fmt.Errorf("generation failed: %w", err)

			case repositories.ChatEventFinal:
				text := ev.Snapshot
				if len(text) < len(latest) {
					text = latest
				}
				part, _ := splitter.Finish(text)
				s.logger.Debug("Final part ready",
					zap.Int("index", part.Index),
					zap.Int("length", len(part.Text)))
				return emit(part)

			default:
				latest = ev.Snapshot
				if part, ok := splitter.Push(ev.Snapshot); ok {
					s.logger.Debug("Part ready",
						zap.Int("index", part.Index),
						zap.Int("length", len(part.Text)))
					if err := emit(part); err != nil {
						return err
					}
				}
			}
		}
	}
}
