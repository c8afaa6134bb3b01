package domain

// TextPart is a delimiter-bounded slice of the generated reply.
// It is immutable once emitted by the segmenter.
type TextPart struct {
	// Index is the position of the part in generation order, starting at 0.
	Index   int
	Text    string
	IsFinal bool
}

// SynthesisResult pairs a TextPart with its synthesized audio.
// It is handed to the frame encoder exactly once and not retained afterwards.
type SynthesisResult struct {
	Part   TextPart
	Audio  []byte
	Format string // e.g. "mp3", "opus"
}
