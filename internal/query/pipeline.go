package query

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/nhlutterodt/localrag/internal/apperr"
	"github.com/nhlutterodt/localrag/internal/collection"
	"github.com/nhlutterodt/localrag/internal/config"
	"github.com/nhlutterodt/localrag/internal/querylog"
	"github.com/nhlutterodt/localrag/internal/upstream"
	"github.com/nhlutterodt/localrag/internal/vectorstore"
)

const systemInstruction = "Use ONLY the provided context to answer. If the context does not contain the answer, say you don't know."

// Pipeline runs one /api/chat turn end to end.
type Pipeline struct {
	registry *collection.Registry
	embedder Embedder
	chatter  Chatter
	querylog *querylog.Logger
	cfg      *config.Config
	logger   *slog.Logger
}

// New constructs a Pipeline wired to the shared collection registry,
// upstream clients, and query telemetry logger.
func New(registry *collection.Registry, embedder Embedder, chatter Chatter, ql *querylog.Logger, cfg *config.Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{registry: registry, embedder: embedder, chatter: chatter, querylog: ql, cfg: cfg, logger: logger}
}

// Run executes spec.md §4.7's steps for one chat turn and returns a
// channel of ordered SSE events: one StatusEvent, one MetadataEvent,
// then a stream of TokenEvents (or an ErrorEvent in their place). The
// channel is always closed when the turn ends, including on ctx
// cancellation (the handler's disconnect-detector cancels ctx, which
// this function propagates straight into the upstream chat call).
func (p *Pipeline) Run(ctx context.Context, messages []upstream.Message, chatModel, collectionName string) (<-chan Event, error) {
	lastUser := lastUserMessage(messages)
	if lastUser == "" {
		return nil, apperr.InputValidation("messages must contain at least one user turn", nil)
	}

	col, err := p.registry.Get(collectionName, p.cfg.EmbeddingModel)
	if err != nil {
		return nil, err
	}

	embedStart := time.Now()
	queryVec, err := p.embedder.Embed(ctx, lastUser, p.cfg.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	embedMs := time.Since(embedStart).Milliseconds()

	searchStart := time.Now()
	results, err := col.Store.FindNearest(queryVec, p.cfg.TopK, float32(p.cfg.MinScore), p.cfg.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	searchMs := time.Since(searchStart).Milliseconds()

	accepted := enforceTokenBudget(results, p.cfg.MaxContextTokens)
	systemPrompt := composeSystemPrompt(accepted)

	chatMessages := append([]upstream.Message{{Role: "system", Content: systemPrompt}}, messages...)
	chatStream, err := p.chatter.Chat(ctx, chatMessages, chatModel)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, 8)
	go p.relay(ctx, out, chatStream, accepted, lastUser, chatModel, embedMs, searchMs, len(results))
	return out, nil
}

// relay drives the rest of the turn after the SSE stream has started:
// once this point is reached, any failure becomes an inline ErrorEvent
// rather than a returned error (spec.md §4.7).
func (p *Pipeline) relay(ctx context.Context, out chan<- Event, chatStream <-chan upstream.ChatEvent, accepted []vectorstore.SearchResult, query, chatModel string, embedMs, searchMs int64, resultCount int) {
	defer close(out)

	out <- StatusEvent{Type: "status", Message: ""}
	out <- MetadataEvent{Type: "metadata", Citations: toCitations(accepted)}

	var topScore float32
	if len(accepted) > 0 {
		topScore = accepted[0].Score
	}
	citationEntries := toCitationEntries(accepted)

	var tokenCount int
	for {
		select {
		case <-ctx.Done():
			p.logEntry(query, chatModel, embedMs, searchMs, resultCount, topScore, tokenCount, citationEntries, ctx.Err())
			return
		case ev, ok := <-chatStream:
			if !ok {
				p.logEntry(query, chatModel, embedMs, searchMs, resultCount, topScore, tokenCount, citationEntries, nil)
				return
			}
			if ev.Err != nil {
				if ev.Err != context.Canceled {
					out <- ErrorEvent{Type: "error", Message: ev.Err.Error()}
				}
				p.logEntry(query, chatModel, embedMs, searchMs, resultCount, topScore, tokenCount, citationEntries, ev.Err)
				return
			}
			if ev.Content != "" {
				tokenCount++
				out <- NewTokenEvent(ev.Content)
			}
			if ev.Done {
				p.logEntry(query, chatModel, embedMs, searchMs, resultCount, topScore, tokenCount, citationEntries, nil)
				return
			}
		}
	}
}

// logEntry fires the fire-and-forget telemetry write spec.md §4.7 step 8
// requires, regardless of how the turn ended.
func (p *Pipeline) logEntry(query, chatModel string, embedMs, searchMs int64, resultCount int, topScore float32, tokenCount int, results []querylog.CitationEntry, runErr error) {
	entry := querylog.Entry{
		Timestamp:      time.Now().UTC(),
		Query:          query,
		EmbeddingModel: p.cfg.EmbeddingModel,
		ChatModel:      chatModel,
		TopK:           p.cfg.TopK,
		MinScore:       p.cfg.MinScore,
		ResultCount:    resultCount,
		Results:        results,
		EmbedMs:        embedMs,
		SearchMs:       searchMs,
		TokenCount:     tokenCount,
		LowConfidence:  querylog.LowConfidence(resultCount, float64(topScore), p.cfg.MinScore),
	}
	if runErr != nil && runErr != context.Canceled {
		entry.Error = runErr.Error()
	}
	p.querylog.Log(entry)
}

// lastUserMessage returns the content of the last message with role
// "user", or "" if none exists.
func lastUserMessage(messages []upstream.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// enforceTokenBudget accepts results, highest score first, until adding
// the next one would exceed maxContextTokens (spec.md §4.7 step 4).
// Results arrive from FindNearest already sorted by descending score.
func enforceTokenBudget(results []vectorstore.SearchResult, maxContextTokens int) []vectorstore.SearchResult {
	var accepted []vectorstore.SearchResult
	var used int
	for _, r := range results {
		cost := estimateTokens(r.Metadata.ChunkText)
		if used+cost > maxContextTokens {
			break
		}
		used += cost
		accepted = append(accepted, r)
	}
	return accepted
}

// estimateTokens implements spec.md §4.7's ceil(1.3 * wordCount) formula.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(1.3 * float64(words)))
}

// composeSystemPrompt builds the fixed-instruction-plus-context system
// message spec.md §4.7 step 5 describes.
func composeSystemPrompt(accepted []vectorstore.SearchResult) string {
	var b strings.Builder
	b.WriteString(systemInstruction)
	for _, r := range accepted {
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "[Source: %s]\n%s", r.Metadata.FileName, r.Metadata.ChunkText)
	}
	return b.String()
}

func toCitations(accepted []vectorstore.SearchResult) []Citation {
	citations := make([]Citation, 0, len(accepted))
	for _, r := range accepted {
		citations = append(citations, Citation{
			FileName:      r.Metadata.FileName,
			HeaderContext: r.Metadata.HeaderContext,
			Score:         r.Score,
			Preview:       r.Metadata.TextPreview,
		})
	}
	return citations
}

// toCitationEntries builds the per-result detail spec.md §3's QueryLogEntry
// requires (score, fileName, chunkIndex, headerContext, preview), logged
// alongside every turn regardless of how it ends.
func toCitationEntries(accepted []vectorstore.SearchResult) []querylog.CitationEntry {
	entries := make([]querylog.CitationEntry, 0, len(accepted))
	for _, r := range accepted {
		entries = append(entries, querylog.CitationEntry{
			Score:         r.Score,
			FileName:      r.Metadata.FileName,
			ChunkIndex:    r.Metadata.ChunkIndex,
			HeaderContext: r.Metadata.HeaderContext,
			Preview:       r.Metadata.TextPreview,
		})
	}
	return entries
}
