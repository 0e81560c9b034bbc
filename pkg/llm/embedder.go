package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// EmbedderConfig represents the configuration for an embedding function.
type EmbedderConfig struct {
	Provider   string
	Model      string
	BaseURL    string // Ollama server URL or OpenAI-compatible base URL
	APIKey     string
	BatchSize  int
	Dimensions int // only used by the hash provider
}

// Embedder turns text into vectors through a langchaingo embedding client.
type Embedder struct {
	config   EmbedderConfig
	embedder embeddings.Embedder
}

func applyEmbedderDefaults(config *EmbedderConfig) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}
	if config.Model == "" {
		switch config.Provider {
		case ProviderOpenAI:
			config.Model = "text-embedding-3-small"
		default:
			config.Model = "nomic-embed-text:latest"
		}
	}
	if config.BaseURL == "" && config.Provider == ProviderOllama {
		config.BaseURL = "http://localhost:11434"
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
}

// NewEmbedderWithConfig creates an Embedder for the configured provider.
func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	applyEmbedderDefaults(&config)

	var client embeddings.EmbedderClient
	switch config.Provider {
	case ProviderOllama:
		c, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama embedder: %w", err)
		}
		client = c
	case ProviderOpenAI:
		if config.APIKey == "" {
			return nil, fmt.Errorf("openai embedder: API key is required")
		}
		opts := []openai.Option{openai.WithToken(config.APIKey), openai.WithEmbeddingModel(config.Model)}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		c, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai embedder: %w", err)
		}
		client = c
	case ProviderHash:
		h := NewHashEmbedder(config.Dimensions)
		config.Model = fmt.Sprintf("bow-%d", h.Dimensions())
		client = h
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}

	return NewEmbedderWithClient(config, client)
}

// NewEmbedderWithClient wraps an existing embedding client.
func NewEmbedderWithClient(config EmbedderConfig, client embeddings.EmbedderClient) (*Embedder, error) {
	applyEmbedderDefaults(&config)

	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{config: config, embedder: emb}, nil
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to create query embedding: %w", err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("embedder returned an empty vector")
	}
	return vector, nil
}

// Model identifies the embedding function pinned to an index.
func (e *Embedder) Model() string {
	return e.config.Provider + "/" + e.config.Model
}
