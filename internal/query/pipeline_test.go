package query

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhlutterodt/localrag/internal/collection"
	"github.com/nhlutterodt/localrag/internal/config"
	"github.com/nhlutterodt/localrag/internal/querylog"
	"github.com/nhlutterodt/localrag/internal/upstream"
	"github.com/nhlutterodt/localrag/internal/vectorstore"
)

type fakeEmbedder struct{ vec []float32 }

func (f *fakeEmbedder) Embed(ctx context.Context, text, model string) ([]float32, error) {
	return f.vec, nil
}

type fakeChatter struct {
	tokens []string
	err    error
}

func (f *fakeChatter) Chat(ctx context.Context, messages []upstream.Message, model string) (<-chan upstream.ChatEvent, error) {
	out := make(chan upstream.ChatEvent, len(f.tokens)+1)
	go func() {
		defer close(out)
		for _, tok := range f.tokens {
			select {
			case <-ctx.Done():
				out <- upstream.ChatEvent{Err: ctx.Err()}
				return
			case out <- upstream.ChatEvent{Content: tok}:
			}
		}
		if f.err != nil {
			out <- upstream.ChatEvent{Err: f.err}
			return
		}
		out <- upstream.ChatEvent{Done: true}
	}()
	return out, nil
}

func seedCollection(t *testing.T, dataDir, name string, docs map[string]string) {
	t.Helper()
	reg := collection.New(dataDir, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	col, err := reg.GetOrCreate(name, "nomic-embed-text")
	require.NoError(t, err)
	i := 0
	for fileName, text := range docs {
		vec := []float32{1, 0, 0}
		if i%2 == 1 {
			vec = []float32{0, 1, 0}
		}
		require.NoError(t, col.Store.Add(fileName+"_0_abc", vec, vectorstore.ChunkMetadata{
			FileName:       fileName,
			SourcePath:     "/docs/" + fileName,
			ChunkText:      text,
			TextPreview:    text,
			EmbeddingModel: "nomic-embed-text",
			IngestedAt:     time.Now().UTC(),
		}))
		i++
	}
	require.NoError(t, col.Store.Save())
}

func newTestPipeline(t *testing.T, dataDir string, emb Embedder, chat Chatter) *Pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	reg := collection.New(dataDir, logger)
	ql, err := querylog.New(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ql.Flush() })
	cfg := config.Default()
	cfg.MinScore = 0
	return New(reg, emb, chat, ql, cfg, logger)
}

func drain(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestRunEmitsEventsInOrder(t *testing.T) {
	dataDir := t.TempDir()
	seedCollection(t, dataDir, "docs", map[string]string{"a.md": "hello world about go programming"})

	p := newTestPipeline(t, dataDir, &fakeEmbedder{vec: []float32{1, 0, 0}}, &fakeChatter{tokens: []string{"hel", "lo"}})

	ch, err := p.Run(context.Background(), []upstream.Message{{Role: "user", Content: "what is go?"}}, "llama3.1:8b", "docs")
	require.NoError(t, err)

	events := drain(t, ch)
	require.GreaterOrEqual(t, len(events), 4)
	_, isStatus := events[0].(StatusEvent)
	assert.True(t, isStatus)
	_, isMetadata := events[1].(MetadataEvent)
	assert.True(t, isMetadata)

	tok1, ok := events[2].(TokenEvent)
	require.True(t, ok)
	assert.Equal(t, "hel", tok1.Message.Content)
}

func TestRunRejectsMissingUserMessage(t *testing.T) {
	dataDir := t.TempDir()
	seedCollection(t, dataDir, "docs", map[string]string{"a.md": "content"})
	p := newTestPipeline(t, dataDir, &fakeEmbedder{vec: []float32{1, 0, 0}}, &fakeChatter{})

	_, err := p.Run(context.Background(), []upstream.Message{{Role: "system", Content: "hi"}}, "llama3.1:8b", "docs")
	require.Error(t, err)
}

func TestEnforceTokenBudgetStopsAtLimit(t *testing.T) {
	results := []vectorstore.SearchResult{
		{Score: 0.9, Metadata: vectorstore.ChunkMetadata{ChunkText: wordsOf(100)}},
		{Score: 0.8, Metadata: vectorstore.ChunkMetadata{ChunkText: wordsOf(100)}},
		{Score: 0.7, Metadata: vectorstore.ChunkMetadata{ChunkText: wordsOf(100)}},
	}
	accepted := enforceTokenBudget(results, 150)
	assert.Len(t, accepted, 1)
}

func wordsOf(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += "word "
	}
	return s
}

func TestComposeSystemPromptIncludesSourceTags(t *testing.T) {
	accepted := []vectorstore.SearchResult{
		{Metadata: vectorstore.ChunkMetadata{FileName: "a.md", ChunkText: "alpha content"}},
	}
	prompt := composeSystemPrompt(accepted)
	assert.Contains(t, prompt, "[Source: a.md]")
	assert.Contains(t, prompt, "alpha content")
	assert.Contains(t, prompt, systemInstruction)
}
