package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, 10000, cfg.MaxInputLength)
	require.Equal(t, 50, cfg.MaxNestingDepth)
	require.Equal(t, 5*time.Second, cfg.DefaultTimeout)
	require.Equal(t, 4, cfg.MaxConcurrency)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FUSION_MAX_INPUT_LENGTH", "500")
	t.Setenv("FUSION_DEFAULT_TIMEOUT", "250ms")
	t.Setenv("FUSION_MAX_CONCURRENCY", "16")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 500, cfg.MaxInputLength)
	require.Equal(t, 250*time.Millisecond, cfg.DefaultTimeout)
	require.Equal(t, 16, cfg.MaxConcurrency)
	// untouched fields keep defaults
	require.Equal(t, 50, cfg.MaxNestingDepth)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fusion.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_input_length: 2000
default_timeout_ms: 2000
deny_patterns:
  - "rm -rf"
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2000, cfg.MaxInputLength)
	require.Equal(t, 2*time.Second, cfg.DefaultTimeout)
	require.Equal(t, []string{"rm -rf"}, cfg.DenyPatterns)
	require.Equal(t, 50, cfg.MaxNestingDepth)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("/nonexistent/fusion.yaml")
	require.Error(t, err)
}

func TestLoadBadFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_input_length: [broken"), 0o644))

	t.Setenv("FUSION_CONFIG", path)
	_, err := Load()
	require.Error(t, err)
}
