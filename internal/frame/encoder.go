package frame

import (
	"fmt"
	"io"

	"github.com/satriahrh/voicerelay/domain"
)

type flusher interface {
	Flush()
}

type errFlusher interface {
	Flush() error
}

// Encoder writes frames for a single connection. Every frame carries the same
// query. An Encoder is not safe for concurrent use.
type Encoder struct {
	w      io.Writer
	query  string
	buf    []byte
	frames int
	bytes  int64
}

// NewEncoder creates an encoder that writes to w
func NewEncoder(w io.Writer, query string) *Encoder {
	return &Encoder{w: w, query: query}
}

// Encode writes one frame and flushes w if it supports flushing
func (e *Encoder) Encode(text string, audio []byte) error {
	var err error
	e.buf, err = AppendFrame(e.buf[:0], Frame{Query: e.query, Text: text, Audio: audio})
	if err != nil {
		return err
	}
	n, err := e.w.Write(e.buf)
	e.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("write frame %d: %w", e.frames, err)
	}
	if err := e.flush(); err != nil {
		return fmt.Errorf("flush frame %d: %w", e.frames, err)
	}
	e.frames++
	return nil
}

// WriteResult encodes a synthesized part
func (e *Encoder) WriteResult(r domain.SynthesisResult) error {
	return e.Encode(r.Part.Text, r.Audio)
}

// Frames returns the number of frames written so far
func (e *Encoder) Frames() int { return e.frames }

// BytesWritten returns the number of bytes written so far
func (e *Encoder) BytesWritten() int64 { return e.bytes }

func (e *Encoder) flush() error {
	switch f := e.w.(type) {
	case errFlusher:
		return f.Flush()
	case flusher:
		f.Flush()
	}
	return nil
}
