// Package query implements QueryPipeline, spec.md §4.7's orchestration
// for one /api/chat turn: embed the last user message, retrieve the
// nearest chunks, enforce a token budget, compose a grounded system
// prompt, and relay the upstream chat stream as an ordered sequence of
// SSE-ready events. Grounded on the teacher's internal/search/engine.go
// stage structure (embed -> retrieve -> fuse/budget -> respond), rebuilt
// around spec.md §4.7's simpler single-vector-retrieval + token-budget
// steps rather than the teacher's BM25/vector RRF fusion (no lexical
// index is part of this spec).
package query

import (
	"context"

	"github.com/nhlutterodt/localrag/internal/upstream"
)

// Citation describes one retrieved chunk grounding the response, emitted
// in the "metadata" SSE event.
type Citation struct {
	FileName      string  `json:"fileName"`
	HeaderContext string  `json:"headerContext"`
	Score         float32 `json:"score"`
	Preview       string  `json:"preview"`
}

// Event is implemented by every value QueryPipeline.Run sends on its
// output channel. The HTTP layer does not inspect the concrete type: it
// writes every Event as-is, and each marshals to its own SSE JSON shape
// via json.Marshal.
type Event interface {
	isEvent()
}

// StatusEvent reports retrieval progress; spec.md §4.7 step 6 emits
// exactly one, with an empty Message, once retrieval completes.
type StatusEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (StatusEvent) isEvent() {}

// MetadataEvent carries the citations for the accepted context chunks.
type MetadataEvent struct {
	Type      string     `json:"type"`
	Citations []Citation `json:"citations"`
}

func (MetadataEvent) isEvent() {}

// tokenMessage mirrors Ollama's own streaming chat shape, which spec.md
// §4.7 step 6 asks token events to match verbatim.
type tokenMessage struct {
	Content string `json:"content"`
}

// TokenEvent relays one token from the upstream chat stream, in arrival order.
type TokenEvent struct {
	Message tokenMessage `json:"message"`
}

func (TokenEvent) isEvent() {}

// ErrorEvent is emitted in place of further tokens when something fails
// after the SSE stream has already started (spec.md §4.7).
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (ErrorEvent) isEvent() {}

// NewTokenEvent builds a TokenEvent carrying content.
func NewTokenEvent(content string) TokenEvent {
	return TokenEvent{Message: tokenMessage{Content: content}}
}

// Embedder is the subset of upstream.Client the pipeline depends on.
type Embedder interface {
	Embed(ctx context.Context, text, model string) ([]float32, error)
}

// Chatter is the subset of upstream.Client the pipeline depends on.
type Chatter interface {
	Chat(ctx context.Context, messages []upstream.Message, model string) (<-chan upstream.ChatEvent, error)
}
