// Package chunk implements the deterministic text splitter described by
// spec.md §4.4: extension-based dispatch to a primary splitter (markdown by
// header path, code by function boundary, XML by element, plain text by
// paragraph), followed by a sliding-window refinement pass that keeps any
// oversized section under maxChunkSize.
package chunk

import "time"

// Options configures the sliding-window refinement pass shared by every
// extension's primary splitter.
type Options struct {
	// MaxChunkSize is the maximum chunk length in characters.
	MaxChunkSize int
	// Overlap is the character overlap between consecutive windows.
	Overlap int
}

// DefaultOptions mirrors spec.md §4.4's configuration defaults.
func DefaultOptions() Options {
	return Options{MaxChunkSize: 1000, Overlap: 200}
}

// Chunk is one contiguous text fragment produced by Dispatch, the unit of
// embedding and retrieval.
type Chunk struct {
	Text          string
	HeaderContext string
	Index         int
	TextPreview   string
	CreatedAt     time.Time
}

// section is an intermediate primary-split result, before sliding-window
// refinement. Every extension's splitter produces a slice of these.
type section struct {
	text          string
	headerContext string
}
