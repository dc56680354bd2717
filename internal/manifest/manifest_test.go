package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(name, hash string) Entry {
	return Entry{
		FileName:       name,
		SourcePath:     "/docs/" + name,
		ContentHash:    hash,
		ChunkCount:     1,
		FileSize:       10,
		LastIngested:   time.Now().UTC(),
		EmbeddingModel: "nomic-embed-text",
	}
}

func TestAddOrUpdateIsCaseInsensitive(t *testing.T) {
	m := New(t.TempDir(), "docs")
	m.AddOrUpdate(entry("A.md", "h1"))

	got, ok := m.Get("a.md")
	require.True(t, ok)
	assert.Equal(t, "A.md", got.FileName)
}

func TestIsUnchangedSkipsMatchingHash(t *testing.T) {
	m := New(t.TempDir(), "docs")
	m.AddOrUpdate(entry("a.md", "h1"))

	assert.True(t, m.IsUnchanged("a.md", "h1"))
	assert.False(t, m.IsUnchanged("a.md", "h2"))
	assert.False(t, m.IsUnchanged("missing.md", "h1"))
}

func TestFindByHashDetectsRename(t *testing.T) {
	m := New(t.TempDir(), "docs")
	m.AddOrUpdate(entry("a.md", "h1"))

	found, ok := m.FindByHash("h1")
	require.True(t, ok)
	assert.Equal(t, "a.md", found.FileName)

	_, ok = m.FindByHash("nope")
	assert.False(t, ok)
}

func TestRenameMovesKeyWithoutTouchingHash(t *testing.T) {
	m := New(t.TempDir(), "docs")
	m.AddOrUpdate(entry("a.md", "h1"))

	m.Rename("a.md", "b.md", "/docs/b.md")

	_, ok := m.Get("a.md")
	assert.False(t, ok)

	got, ok := m.Get("b.md")
	require.True(t, ok)
	assert.Equal(t, "h1", got.ContentHash)
	assert.Equal(t, "/docs/b.md", got.SourcePath)
}

func TestGetOrphansReturnsFilesNotInCurrentScan(t *testing.T) {
	m := New(t.TempDir(), "docs")
	m.AddOrUpdate(entry("a.md", "h1"))
	m.AddOrUpdate(entry("b.md", "h2"))

	orphans := m.GetOrphans([]string{"a.md"})
	require.Len(t, orphans, 1)
	assert.Equal(t, "b.md", orphans[0].FileName)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, "docs")
	m.AddOrUpdate(entry("a.md", "h1"))
	m.AddOrUpdate(entry("b.md", "h2"))
	require.NoError(t, m.Save())

	loaded := New(dir, "docs")
	require.NoError(t, loaded.Load())

	all := loaded.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a.md", all[0].FileName)
	assert.Equal(t, "b.md", all[1].FileName)
}

func TestRemoveDeletesEntry(t *testing.T) {
	m := New(t.TempDir(), "docs")
	m.AddOrUpdate(entry("a.md", "h1"))
	m.Remove("a.md")

	_, ok := m.Get("a.md")
	assert.False(t, ok)
}
