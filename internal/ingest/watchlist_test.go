package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAndLoadWatchRoots(t *testing.T) {
	dataDir := t.TempDir()

	require.NoError(t, recordWatchRoot(dataDir, "docs", "/home/user/docs"))
	require.NoError(t, recordWatchRoot(dataDir, "notes", "/home/user/notes"))
	require.NoError(t, recordWatchRoot(dataDir, "docs", "/home/user/docs-v2"))

	roots, err := LoadWatchRoots(dataDir)
	require.NoError(t, err)
	assert.Equal(t, "/home/user/docs-v2", roots["docs"])
	assert.Equal(t, "/home/user/notes", roots["notes"])
}

func TestLoadWatchRootsMissingFile(t *testing.T) {
	roots, err := LoadWatchRoots(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, roots)
}
