package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadAppliesFileOverrides(t *testing.T) {
	dir := t.TempDir()
	yamlContent := "embeddingModel: custom-embed\ntopK: 8\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ragd.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "custom-embed", cfg.EmbeddingModel)
	assert.Equal(t, 8, cfg.TopK)
	// Untouched keys keep their defaults.
	assert.Equal(t, "llama3.1:8b", cfg.ChatModel)
}

func TestLoadAppliesEnvOverridesAfterFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ragd.yaml"), []byte("topK: 8\n"), 0o644))
	t.Setenv("RAGD_TOP_K", "12")
	t.Setenv("RAGD_CHAT_MODEL", "mistral:7b")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.TopK)
	assert.Equal(t, "mistral:7b", cfg.ChatModel)
}

func TestValidateRejectsOverlapNotSmallerThanChunkSize(t *testing.T) {
	cfg := Default()
	cfg.ChunkOverlap = cfg.ChunkSize
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveTopK(t *testing.T) {
	cfg := Default()
	cfg.TopK = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyModelNames(t *testing.T) {
	cfg := Default()
	cfg.EmbeddingModel = "  "
	require.Error(t, cfg.Validate())
}
