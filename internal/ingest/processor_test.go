package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhlutterodt/localrag/internal/collection"
	"github.com/nhlutterodt/localrag/internal/config"
	"github.com/nhlutterodt/localrag/internal/queue"
)

// fakeEmbedder returns a deterministic low-dimensional vector derived from
// the text's length, so tests never touch a live Ollama instance.
type fakeEmbedder struct {
	calls int
	fail  bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text, model string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, assert.AnError
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func newTestProcessor(t *testing.T, dataDir string, emb Embedder) (*Processor, *collection.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	reg := collection.New(dataDir, logger)
	cfg := config.Default()
	cfg.ChunkSize = 200
	cfg.ChunkOverlap = 20
	return New(reg, emb, cfg, logger), reg
}

func TestProcessIngestsNewFiles(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("hello world, this is a short document."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "b.txt"), []byte("a second unrelated document about go."), 0o644))

	dataDir := t.TempDir()
	emb := &fakeEmbedder{}
	proc, reg := newTestProcessor(t, dataDir, emb)

	job := &queue.Job{ID: "job-1", Path: srcDir, Collection: "docs"}
	var progress []string
	err := proc.Process(context.Background(), job, func(s string) { progress = append(progress, s) })
	require.NoError(t, err)
	assert.NotEmpty(t, progress)

	col, err := reg.Get("docs", "nomic-embed-text")
	require.NoError(t, err)
	stats := col.Store.Stats()
	assert.Greater(t, stats.VectorCount, 0)

	_, ok := col.Manifest.Get("a.txt")
	assert.True(t, ok)
	_, ok = col.Manifest.Get("b.txt")
	assert.True(t, ok)
}

func TestProcessSkipsUnchangedFiles(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("stable content that never changes."), 0o644))

	dataDir := t.TempDir()
	emb := &fakeEmbedder{}
	proc, _ := newTestProcessor(t, dataDir, emb)

	job := &queue.Job{ID: "job-1", Path: srcDir, Collection: "docs"}
	require.NoError(t, proc.Process(context.Background(), job, func(string) {}))
	firstCalls := emb.calls

	require.NoError(t, proc.Process(context.Background(), job, func(string) {}))
	assert.Equal(t, firstCalls, emb.calls, "second run over unchanged files must not re-embed")
}

func TestProcessDetectsRename(t *testing.T) {
	srcDir := t.TempDir()
	content := []byte("content that will move to a new file name.")
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "old.txt"), content, 0o644))

	dataDir := t.TempDir()
	emb := &fakeEmbedder{}
	proc, reg := newTestProcessor(t, dataDir, emb)

	job := &queue.Job{ID: "job-1", Path: srcDir, Collection: "docs"}
	require.NoError(t, proc.Process(context.Background(), job, func(string) {}))
	firstCalls := emb.calls

	require.NoError(t, os.Remove(filepath.Join(srcDir, "old.txt")))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "new.txt"), content, 0o644))
	require.NoError(t, proc.Process(context.Background(), job, func(string) {}))

	assert.Equal(t, firstCalls, emb.calls, "rename must not re-embed")

	col, err := reg.Get("docs", "nomic-embed-text")
	require.NoError(t, err)
	_, ok := col.Manifest.Get("old.txt")
	assert.False(t, ok)
	_, ok = col.Manifest.Get("new.txt")
	assert.True(t, ok)
}

func TestProcessRemovesOrphans(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("one document here."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "b.txt"), []byte("another document here."), 0o644))

	dataDir := t.TempDir()
	emb := &fakeEmbedder{}
	proc, reg := newTestProcessor(t, dataDir, emb)

	job := &queue.Job{ID: "job-1", Path: srcDir, Collection: "docs"}
	require.NoError(t, proc.Process(context.Background(), job, func(string) {}))

	require.NoError(t, os.Remove(filepath.Join(srcDir, "b.txt")))
	require.NoError(t, proc.Process(context.Background(), job, func(string) {}))

	col, err := reg.Get("docs", "nomic-embed-text")
	require.NoError(t, err)
	_, ok := col.Manifest.Get("b.txt")
	assert.False(t, ok)
	stats := col.Store.Stats()
	assert.Greater(t, stats.VectorCount, 0)
}

func TestProcessReportsPartialFailure(t *testing.T) {
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("will fail to embed."), 0o644))

	dataDir := t.TempDir()
	emb := &fakeEmbedder{fail: true}
	proc, _ := newTestProcessor(t, dataDir, emb)

	job := &queue.Job{ID: "job-1", Path: srcDir, Collection: "docs"}
	err := proc.Process(context.Background(), job, func(string) {})
	require.Error(t, err)
}
