package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhlutterodt/localrag/internal/collection"
)

// newTestRegistry creates an empty, persisted collection so the CLI's
// loadRegistry path (which reads from disk, not from this in-process
// *Registry) can see it.
func newTestRegistry(t *testing.T, projectDir, name string) *collection.Registry {
	t.Helper()
	cfg, reg, err := loadRegistry(projectDir)
	require.NoError(t, err)
	col, err := reg.GetOrCreate(name, cfg.EmbeddingModel)
	require.NoError(t, err)
	require.NoError(t, col.Manifest.Save())
	require.NoError(t, col.Store.Save())
	return reg
}

func TestCollectionListReportsNoCollections(t *testing.T) {
	dir := t.TempDir()
	cmd := newCollectionListCmd(&dir)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "no collections ingested yet")
}

func TestCollectionListReportsIngestedCollection(t *testing.T) {
	dir := t.TempDir()
	newTestRegistry(t, dir, "docs")

	cmd := newCollectionListCmd(&dir)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "docs")
}

func TestCollectionDestroyRequiresForceFlag(t *testing.T) {
	dir := t.TempDir()
	newTestRegistry(t, dir, "docs")

	cmd := newCollectionDestroyCmd(&dir)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"docs"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "--force")

	_, reg, err := loadRegistry(dir)
	require.NoError(t, err)
	names, err := reg.List()
	require.NoError(t, err)
	assert.Contains(t, names, "docs")
}

func TestCollectionDestroyRemovesCollection(t *testing.T) {
	dir := t.TempDir()
	newTestRegistry(t, dir, "docs")

	cmd := newCollectionDestroyCmd(&dir)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"docs", "--force"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "destroyed")

	_, reg, err := loadRegistry(dir)
	require.NoError(t, err)
	names, err := reg.List()
	require.NoError(t, err)
	assert.NotContains(t, names, "docs")
}
