package frame

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFieldSize bounds a single declared field length
const DefaultMaxFieldSize = 64 << 20

// Phase is the decoder's position within a frame
type Phase int

const (
	PhaseQueryLength Phase = iota
	PhaseQuery
	PhaseTextLength
	PhaseText
	PhaseAudioLength
	PhaseAudio
)

func (p Phase) String() string {
	switch p {
	case PhaseQueryLength:
		return "queryLength"
	case PhaseQuery:
		return "query"
	case PhaseTextLength:
		return "textLength"
	case PhaseText:
		return "text"
	case PhaseAudioLength:
		return "audioLength"
	case PhaseAudio:
		return "audio"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

func (p Phase) isLength() bool {
	return p == PhaseQueryLength || p == PhaseTextLength || p == PhaseAudioLength
}

// ParseState is a snapshot of the decoder cursor
type ParseState struct {
	Phase Phase
	// Declared is the number of bytes the current field needs
	Declared int
	// Buffered is the number of bytes of the current field collected so far
	Buffered int
}

// DecoderOption configures a Decoder
type DecoderOption func(*Decoder)

// WithMaxFieldSize rejects declared field lengths above n bytes
func WithMaxFieldSize(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.maxFieldSize = n
		}
	}
}

// Decoder incrementally reassembles frames from arbitrarily split chunks.
// Bytes of a partially received field are carried over to the next call.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	phase        Phase
	need         int
	frag         []byte
	pending      Frame
	maxFieldSize int
	err          error
}

// NewDecoder creates a decoder positioned at the start of a frame
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		phase:        PhaseQueryLength,
		need:         LengthSize,
		maxFieldSize: DefaultMaxFieldSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current cursor
func (d *Decoder) State() ParseState {
	return ParseState{Phase: d.phase, Declared: d.need, Buffered: len(d.frag)}
}

// Feed consumes chunk and returns every frame it completed, in order.
// chunk is not retained. After an error the decoder is unusable.
func (d *Decoder) Feed(chunk []byte) ([]Frame, error) {
	if d.err != nil {
		return nil, d.err
	}

	var frames []Frame
	for {
		if len(d.frag) == d.need {
			done, err := d.complete()
			if err != nil {
				d.err = err
				return frames, err
			}
			if done {
				frames = append(frames, d.pending)
				d.pending = Frame{}
			}
			continue
		}
		if len(chunk) == 0 {
			return frames, nil
		}

		take := min(d.need-len(d.frag), len(chunk))
		if d.frag == nil {
			d.frag = make([]byte, 0, d.need)
		}
		d.frag = append(d.frag, chunk[:take]...)
		chunk = chunk[take:]
	}
}

// complete finishes the current field and advances the phase. It reports
// whether a whole frame is now available in d.pending.
func (d *Decoder) complete() (bool, error) {
	if d.phase.isLength() {
		n := binary.LittleEndian.Uint32(d.frag)
		if uint64(n) > uint64(d.maxFieldSize) {
			return false, fmt.Errorf("%w: %s declares %d bytes, limit %d", ErrFieldTooLarge, d.phase+1, n, d.maxFieldSize)
		}
		d.frag = d.frag[:0]
		d.phase++
		d.need = int(n)
		if cap(d.frag) < d.need {
			d.frag = nil
		}
		return false, nil
	}

	field := d.frag
	d.frag = nil
	switch d.phase {
	case PhaseQuery:
		d.pending.Query = string(field)
	case PhaseText:
		d.pending.Text = string(field)
	case PhaseAudio:
		d.pending.Audio = field
		d.phase = PhaseQueryLength
		d.need = LengthSize
		return true, nil
	}
	d.phase++
	d.need = LengthSize
	return false, nil
}

// Close reports ErrTruncated if the stream stopped in the middle of a frame.
// The partially assembled field is discarded.
func (d *Decoder) Close() error {
	if d.err != nil {
		return d.err
	}
	if d.phase != PhaseQueryLength || len(d.frag) > 0 {
		err := fmt.Errorf("%w: stopped in %s with %d of %d bytes", ErrTruncated, d.phase, len(d.frag), d.need)
		d.frag = nil
		d.pending = Frame{}
		d.err = err
		return err
	}
	return nil
}

// Decode reads r until EOF and calls fn for each frame in order. It returns
// ErrTruncated if r ends mid-frame, and stops early if fn returns an error or
// ctx is done.
func Decode(ctx context.Context, r io.Reader, fn func(Frame) error, opts ...DecoderOption) error {
	d := NewDecoder(opts...)
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			frames, err := d.Feed(buf[:n])
			for _, f := range frames {
				if err := fn(f); err != nil {
					return err
				}
			}
			if err != nil {
				return err
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return d.Close()
			}
			return readErr
		}
	}
}
