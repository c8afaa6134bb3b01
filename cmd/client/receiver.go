package main

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/domain/repositories"
	"github.com/satriahrh/voicerelay/internal/frame"
)

// receiver saves every audio part and accumulates the reply text
type receiver struct {
	store  repositories.AudioStore
	format string
	out    io.Writer
	logger *zap.Logger

	query string
	text  strings.Builder
	parts int
	saved []string
}

func newReceiver(store repositories.AudioStore, format string, out io.Writer, logger *zap.Logger) *receiver {
	if format == "" {
		format = "mp3"
	}
	return &receiver{store: store, format: format, out: out, logger: logger}
}

// handle is called once per decoded frame, in stream order
func (r *receiver) handle(f frame.Frame) error {
	if r.parts == 0 {
		r.query = f.Query
		fmt.Fprintf(r.out, "You: %s\n\nAssistant: ", f.Query)
	}

	name := fmt.Sprintf("part%d.%s", r.parts, r.format)
	r.parts++
	r.text.WriteString(f.Text)
	fmt.Fprint(r.out, f.Text)

	if len(f.Audio) == 0 {
		r.logger.Debug("Part has no audio", zap.Int("part", r.parts-1))
		return nil
	}
	path, err := r.store.Save(f.Audio, name)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	r.saved = append(r.saved, path)
	r.logger.Debug("Part saved",
		zap.String("path", path),
		zap.Int("textLength", len(f.Text)),
		zap.Int("audioSize", len(f.Audio)))
	return nil
}

// Text returns the reply received so far
func (r *receiver) Text() string {
	return r.text.String()
}
