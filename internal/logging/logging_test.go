package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	cfg.WriteToStderr = false

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	defer cleanup()

	logger.Info("hello", "key", "value")

	data, err := os.ReadFile(filepath.Join(dir, "ragd.log"))
	require.NoError(t, err)
	require.Contains(t, string(data), `"msg":"hello"`)
	require.Contains(t, string(data), `"key":"value"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelFromString("debug").String(), "DEBUG")
	require.Equal(t, LevelFromString("warn").String(), "WARN")
	require.Equal(t, LevelFromString("bogus").String(), "INFO")
}
