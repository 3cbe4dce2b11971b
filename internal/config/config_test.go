package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "hashing", cfg.Embedder.Type)
	assert.Equal(t, 512, cfg.Embedder.Dimensions)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, ChunkerConfig{Encoding: "cl100k_base", MinTokens: 25, TargetSize: 500, OverlapTokens: 50}, cfg.Chunker)
	assert.Equal(t, 100, cfg.Detector.TieBreakWindow)
	assert.Equal(t, 1, cfg.Ingest.Concurrency)
	assert.Equal(t, 100, cfg.Ingest.UpsertBatchSize)
	assert.Equal(t, 5, cfg.Retrieval.DefaultTopK)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
embedder:
  type: openai
  dimensions: 256
vector_store:
  type: qdrant
  qdrant:
    collection: filings
chunker:
  target_size: 300
ingest:
  concurrency: 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, 256, cfg.Embedder.Dimensions)
	require.NotNil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, "filings", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
	assert.Equal(t, 300, cfg.Chunker.TargetSize)
	assert.Equal(t, 50, cfg.Chunker.OverlapTokens)
	assert.Equal(t, 4, cfg.Ingest.Concurrency)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"embedder": "embedder:\n  type: word2vec\n",
		"store":    "vector_store:\n  type: faiss\n",
		"overlap":  "chunker:\n  target_size: 40\n  overlap_tokens: 40\n",
		"yaml":     "embedder: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	want := defaultConfig()
	want.VectorStore = VectorStoreConfig{Type: "sqlite", SQLite: &SQLiteConfig{Path: "/tmp/x.db"}}
	require.NoError(t, Save(path, want))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadDefaultWritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "secrag", "config.yaml"), path)
	assert.Equal(t, "hashing", cfg.Embedder.Type)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
