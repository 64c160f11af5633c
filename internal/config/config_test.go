package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 1, cfg.Version)

	assert.Equal(t, 512, cfg.Chunk.MaxTokens)
	assert.Equal(t, 15, cfg.Chunk.OverlapRatio)
	assert.Equal(t, 100, cfg.Chunk.MinTokens)

	assert.Equal(t, 3, cfg.Query.OverfetchMultiplier)
	assert.Equal(t, 20, cfg.Query.MaxResults)

	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, 768, cfg.Embeddings.Dimensions)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.Embeddings.Timeout)

	assert.Equal(t, runtime.NumCPU(), cfg.Index.Workers)
	assert.Equal(t, 16, cfg.Index.M)
	assert.Equal(t, 20, cfg.Index.EfSearch)
	assert.Equal(t, "500ms", cfg.Index.WatchDebounce)

	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, "info", cfg.Server.LogLevel)

	assert.Contains(t, cfg.Paths.Exclude, "**/node_modules/**")
	assert.Contains(t, cfg.Paths.Exclude, "**/.git/**")
	assert.Contains(t, cfg.Paths.Exclude, "**/vendor/**")
}

func TestConfig_Validate_RejectsNonPositiveMaxTokens(t *testing.T) {
	cfg := NewConfig()
	cfg.Chunk.MaxTokens = 0
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsBadTransport(t *testing.T) {
	cfg := NewConfig()
	cfg.Server.Transport = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsBadLogLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.Server.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsZeroOverfetch(t *testing.T) {
	cfg := NewConfig()
	cfg.Query.OverfetchMultiplier = 0
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_AcceptsDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MergesProjectConfigOverDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
chunk:
  max_tokens: 1024
embeddings:
  model: custom-embed
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".compass.yaml"), []byte(yamlContent), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 1024, cfg.Chunk.MaxTokens)
	assert.Equal(t, "custom-embed", cfg.Embeddings.Model)
	// Untouched fields keep their defaults.
	assert.Equal(t, 20, cfg.Query.MaxResults)
}

func TestLoad_NoProjectConfigUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Chunk.MaxTokens, cfg.Chunk.MaxTokens)
}

func TestLoad_EnvOverridesTakePrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("COMPASS_EMBEDDINGS_MODEL", "env-model")
	t.Setenv("COMPASS_MAX_RESULTS", "42")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "env-model", cfg.Embeddings.Model)
	assert.Equal(t, 42, cfg.Query.MaxResults)
}

func TestFindProjectRoot_FindsGitDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0755))
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	root, err := FindProjectRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, dir, root)
}

func TestFindProjectRoot_FallsBackToStartDir(t *testing.T) {
	dir := t.TempDir()
	root, err := FindProjectRoot(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, root)
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := NewConfig()
	cfg.Embeddings.Model = "roundtrip-model"
	require.NoError(t, cfg.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "roundtrip-model")
}
