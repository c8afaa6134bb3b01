// Package frame implements the length-prefixed wire format used to stream
// reply text and audio to the caller.
//
// Each frame is
//
//	u32le queryLength | query | u32le textLength | text | u32le audioLength | audio
//
// repeated until the connection closes. There is no end-of-stream marker.
package frame

import (
	"encoding/binary"
	"errors"
	"math"
)

// LengthSize is the width of every length prefix in bytes
const LengthSize = 4

var (
	// ErrFieldTooLarge is returned when a field exceeds the allowed size
	ErrFieldTooLarge = errors.New("frame field too large")
	// ErrTruncated is returned when the stream ends in the middle of a frame
	ErrTruncated = errors.New("frame stream truncated")
)

// Frame is one (query, text, audio) triple
type Frame struct {
	Query string
	Text  string
	Audio []byte
}

// Size returns the encoded size of f in bytes
func (f Frame) Size() int {
	return 3*LengthSize + len(f.Query) + len(f.Text) + len(f.Audio)
}

// AppendFrame appends the encoding of f to dst
func AppendFrame(dst []byte, f Frame) ([]byte, error) {
	if uint64(len(f.Query)) > math.MaxUint32 || uint64(len(f.Text)) > math.MaxUint32 || uint64(len(f.Audio)) > math.MaxUint32 {
		return dst, ErrFieldTooLarge
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(f.Query)))
	dst = append(dst, f.Query...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(f.Text)))
	dst = append(dst, f.Text...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(f.Audio)))
	dst = append(dst, f.Audio...)
	return dst, nil
}

// Marshal returns the encoding of f
func Marshal(f Frame) ([]byte, error) {
	return AppendFrame(make([]byte, 0, f.Size()), f)
}
