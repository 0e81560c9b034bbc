package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnv = []string{
	"OLLAMA_BASE_URL", "OPENAI_API_KEY", "DATABASE_URL", "TUBEQA_STORE",
	"YOUTUBE_API_KEY", "CHANNEL_ID", "PORT",
}

// clearEnv isolates a test from the caller's environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)

	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  provider: "ollama"
  base_url: "http://localhost:11434"
  model: "llama3"
  max_tokens: 800
  temperature: 0.5
  timeout: 90s

embedding:
  provider: "hash"
  dimensions: 128

store:
  backend: "pgvector"
  url: "postgres://localhost:5432/test"
  table_name: "test_chunks"
  vector_dim: 128
  metric: "l2"

processor:
  chunk_size: 300
  chunk_overlap: 30
  strip_annotations: false

indexer:
  workers: 8

synth:
  source_policy: "cited"

youtube:
  channel_id: "UC123"
  max_videos: 5
  pacing: 1s

server:
  port: 9090
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	// Test loading config
	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "llama3", config.LLM.Model)
	assert.Equal(t, 800, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.SamplingTemperature())
	assert.Equal(t, 90*time.Second, config.LLM.Timeout)
	assert.Equal(t, "hash", config.Embedding.Provider)
	assert.Equal(t, 128, config.Embedding.Dimensions)
	assert.Equal(t, "pgvector", config.Store.Backend)
	assert.Equal(t, "postgres://localhost:5432/test", config.Store.URL)
	assert.Equal(t, "l2", config.Store.Metric)
	assert.Equal(t, 300, config.Processor.ChunkSize)
	assert.Equal(t, 30, config.Processor.Overlap())
	assert.False(t, config.Processor.StripAnnotationsEnabled())
	assert.Equal(t, 8, config.Indexer.Workers)
	assert.Equal(t, "cited", config.Synth.SourcePolicy)
	assert.Equal(t, 5, config.YouTube.MaxVideos)
	assert.Equal(t, time.Second, config.YouTube.Pacing)
	assert.Equal(t, 9090, config.Server.Port)

	// defaults fill the rest
	assert.Equal(t, 32, config.Indexer.BatchSize)
	assert.Equal(t, 5, config.Search.DefaultResults)
	assert.Equal(t, 20, config.Search.MaxResults)
	assert.Equal(t, 3000, config.Synth.MaxContextWords)
	assert.Equal(t, "data/youtuber_context.json", config.YouTube.Output)

	assert.Empty(t, config.Validate())
}

func TestDefaultConfig(t *testing.T) {
	clearEnv(t)

	config, err := getDefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, "ollama", config.LLM.Provider)
	assert.Equal(t, "mistral", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.7, config.LLM.SamplingTemperature())
	assert.Equal(t, 60*time.Second, config.LLM.Timeout)
	assert.Equal(t, "nomic-embed-text:latest", config.Embedding.Model)
	assert.Equal(t, "sqlite", config.Store.Backend)
	assert.Equal(t, 500, config.Processor.ChunkSize)
	assert.Equal(t, 50, config.Processor.Overlap())
	assert.True(t, config.Processor.StripAnnotationsEnabled())
	assert.Equal(t, 4, config.Indexer.Workers)
	assert.Equal(t, "retrieved", config.Synth.SourcePolicy)
	assert.Equal(t, 20, config.YouTube.MaxVideos)
	assert.Equal(t, 300*time.Millisecond, config.YouTube.Pacing)
	assert.Equal(t, 8000, config.Server.Port)

	assert.Empty(t, config.Validate())
}

func TestLoadConfig_KeepsExplicitZeros(t *testing.T) {
	clearEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configData := `
llm:
  temperature: 0
processor:
  chunk_size: 200
  chunk_overlap: 0
`
	require.NoError(t, os.WriteFile(configPath, []byte(configData), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	require.NotNil(t, config.LLM.Temperature)
	assert.Zero(t, config.LLM.SamplingTemperature())
	require.NotNil(t, config.Processor.ChunkOverlap)
	assert.Zero(t, config.Processor.Overlap())
	assert.Empty(t, config.Validate())
}

func TestLoadConfig_Errors(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("llm: [unclosed"), 0644))
	_, err = LoadConfig(bad)
	assert.ErrorContains(t, err, "error parsing config file")
}

func TestConfigValidation(t *testing.T) {
	valid := func() Config {
		c := Config{}
		applyDefaults(&c)
		return c
	}

	tests := []struct {
		name          string
		mutate        func(c *Config)
		errorMessages []string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name: "invalid llm",
			mutate: func(c *Config) {
				c.LLM.BaseURL = "invalid-url"
				c.LLM.MaxTokens = 5000
				c.LLM.Temperature = ptr(3.0)
			},
			errorMessages: []string{
				"llm.base_url: invalid Ollama base URL",
				"llm.max_tokens: max_tokens must be between 1 and 4096",
				"llm.temperature: temperature must be between 0 and 2",
			},
		},
		{
			name: "openai without key",
			mutate: func(c *Config) {
				c.LLM.Provider = "openai"
				c.Embedding.Provider = "openai"
			},
			errorMessages: []string{
				"llm.api_key: OpenAI API key is required",
				"embedding.api_key: OpenAI API key is required",
			},
		},
		{
			name: "pgvector without url",
			mutate: func(c *Config) {
				c.Store.Backend = "pgvector"
				c.Store.VectorDim = -1
				c.Store.Metric = "manhattan"
			},
			errorMessages: []string{
				"store.url: database URL is required",
				"store.vector_dim: vector_dim must be positive",
				"store.metric: metric must be",
			},
		},
		{
			name: "chunking and search",
			mutate: func(c *Config) {
				c.Processor.ChunkOverlap = ptr(c.Processor.ChunkSize)
				c.Search.DefaultResults = 50
				c.Synth.SourcePolicy = "all"
				c.Server.Port = 70000
			},
			errorMessages: []string{
				"processor.chunk_overlap",
				"search.default_results",
				"synth.source_policy",
				"server.port",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			errors := c.Validate()
			require.Len(t, errors, len(tt.errorMessages))

			for i, msg := range tt.errorMessages {
				assert.Contains(t, errors[i].Error(), msg)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TUBEQA_STORE", "pgvector")
	t.Setenv("YOUTUBE_API_KEY", "yt-key")
	t.Setenv("CHANNEL_ID", "UCenv")
	t.Setenv("PORT", "9999")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "http://env-ollama:11434", config.Embedding.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Store.URL)
	assert.Equal(t, "sk-test", config.LLM.APIKey)
	assert.Equal(t, "pgvector", config.Store.Backend)
	assert.Equal(t, "yt-key", config.YouTube.APIKey)
	assert.Equal(t, "UCenv", config.YouTube.ChannelID)
	assert.Equal(t, 9999, config.Server.Port)
}

func TestEnvironmentOverrides_RespectProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")

	config := &Config{LLM: LLMConfig{Provider: "openai", BaseURL: "https://proxy.example.com/v1"}}
	mergeWithEnv(config)

	assert.Equal(t, "https://proxy.example.com/v1", config.LLM.BaseURL)
}
