package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	add := func(field, msg string) {
		errors = append(errors, ValidationError{Field: field, Message: msg})
	}

	// Validate LLM config
	switch c.LLM.Provider {
	case "ollama":
		if c.LLM.BaseURL == "" {
			add("llm.base_url", "Ollama base URL is required")
		} else if !validURL(c.LLM.BaseURL) {
			add("llm.base_url", "invalid Ollama base URL")
		}
	case "openai":
		if c.LLM.APIKey == "" {
			add("llm.api_key", "OpenAI API key is required (set OPENAI_API_KEY)")
		}
	default:
		add("llm.provider", fmt.Sprintf("unknown provider %q", c.LLM.Provider))
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		add("llm.max_tokens", "max_tokens must be between 1 and 4096")
	}

	if t := c.LLM.SamplingTemperature(); t < 0 || t > 2 {
		add("llm.temperature", "temperature must be between 0 and 2")
	}

	if c.LLM.Timeout <= 0 {
		add("llm.timeout", "timeout must be positive")
	}

	// Validate embedding config
	switch c.Embedding.Provider {
	case "ollama":
		if !validURL(c.Embedding.BaseURL) {
			add("embedding.base_url", "invalid Ollama base URL")
		}
	case "openai":
		if c.Embedding.APIKey == "" {
			add("embedding.api_key", "OpenAI API key is required (set OPENAI_API_KEY)")
		}
	case "hash":
	default:
		add("embedding.provider", fmt.Sprintf("unknown provider %q", c.Embedding.Provider))
	}

	if c.Embedding.BatchSize < 1 {
		add("embedding.batch_size", "batch_size must be positive")
	}

	// Validate store config
	switch c.Store.Backend {
	case "memory", "sqlite":
	case "pgvector":
		if c.Store.URL == "" {
			add("store.url", "database URL is required for pgvector (set DATABASE_URL)")
		} else if _, err := url.Parse(c.Store.URL); err != nil {
			add("store.url", "invalid database URL")
		}
	default:
		add("store.backend", fmt.Sprintf("unknown backend %q", c.Store.Backend))
	}

	if c.Store.VectorDim < 1 {
		add("store.vector_dim", "vector_dim must be positive")
	}

	if !oneOf(c.Store.Metric, "cosine", "inner_product", "l2") {
		add("store.metric", "metric must be cosine, inner_product or l2")
	}

	// Validate processor config
	if c.Processor.ChunkSize < 1 {
		add("processor.chunk_size", "chunk_size must be positive")
	}

	if o := c.Processor.Overlap(); o < 0 || o >= c.Processor.ChunkSize {
		add("processor.chunk_overlap", "chunk_overlap must be non-negative and less than chunk_size")
	}

	// Validate indexer config
	if c.Indexer.Workers < 1 {
		add("indexer.workers", "workers must be positive")
	}

	if c.Indexer.BatchSize < 1 {
		add("indexer.batch_size", "batch_size must be positive")
	}

	// Validate search and synthesis
	if c.Search.MaxResults < 1 {
		add("search.max_results", "max_results must be positive")
	}

	if c.Search.DefaultResults < 1 || c.Search.DefaultResults > c.Search.MaxResults {
		add("search.default_results", "default_results must be between 1 and max_results")
	}

	if c.Synth.MaxContextWords < 1 {
		add("synth.max_context_words", "max_context_words must be positive")
	}

	if !oneOf(c.Synth.SourcePolicy, "retrieved", "cited") {
		add("synth.source_policy", "source_policy must be retrieved or cited")
	}

	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "port must be between 1 and 65535")
	}

	return errors
}
