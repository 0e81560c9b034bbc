package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature *float64      `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	BatchSize  int    `yaml:"batch_size"`
	Dimensions int    `yaml:"dimensions"`
}

type StoreConfig struct {
	Backend   string `yaml:"backend"`
	Path      string `yaml:"path"`
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
	VectorDim int    `yaml:"vector_dim"`
	Metric    string `yaml:"metric"`
}

type ProcessorConfig struct {
	ChunkSize        int   `yaml:"chunk_size"`
	ChunkOverlap     *int  `yaml:"chunk_overlap"`
	StripAnnotations *bool `yaml:"strip_annotations"`
	Lowercase        bool  `yaml:"lowercase"`
	RemoveStopwords  bool  `yaml:"remove_stopwords"`
}

type IndexerConfig struct {
	Workers   int `yaml:"workers"`
	BatchSize int `yaml:"batch_size"`
}

type SearchConfig struct {
	DefaultResults int `yaml:"default_results"`
	MaxResults     int `yaml:"max_results"`
}

type SynthConfig struct {
	MaxContextWords int    `yaml:"max_context_words"`
	SourcePolicy    string `yaml:"source_policy"`
}

type YouTubeConfig struct {
	APIKey    string        `yaml:"api_key"`
	ChannelID string        `yaml:"channel_id"`
	MaxVideos int           `yaml:"max_videos"`
	Pacing    time.Duration `yaml:"pacing"`
	Language  string        `yaml:"language"`
	Output    string        `yaml:"output"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Processor ProcessorConfig `yaml:"processor"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Synth     SynthConfig     `yaml:"synth"`
	YouTube   YouTubeConfig   `yaml:"youtube"`
	Server    ServerConfig    `yaml:"server"`
	Debug     bool            `yaml:"debug"`
}

const (
	DefaultTemperature  = 0.7
	DefaultChunkOverlap = 50
)

// SamplingTemperature returns the configured temperature. An explicit 0 is
// kept for deterministic generation.
func (l LLMConfig) SamplingTemperature() float64 {
	if l.Temperature == nil {
		return DefaultTemperature
	}
	return *l.Temperature
}

// Overlap returns the words carried between chunks. An explicit 0 gives
// disjoint chunks.
func (p ProcessorConfig) Overlap() int {
	if p.ChunkOverlap == nil {
		return DefaultChunkOverlap
	}
	return *p.ChunkOverlap
}

// StripAnnotationsEnabled reports whether caption annotations such as [Music] are
// removed before chunking. It defaults to true.
func (p ProcessorConfig) StripAnnotationsEnabled() bool {
	return p.StripAnnotations == nil || *p.StripAnnotations
}

// LoadConfig reads the YAML config at path, or the first file found in the
// default locations, then applies .env, environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %v", err)
	}

	// If no path provided, try default locations
	if path == "" {
		home, _ := os.UserHomeDir()
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(home, ".config/tubeqa/config.yaml"),
			"/etc/tubeqa/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.Model == "" {
		if config.LLM.Provider == "openai" {
			config.LLM.Model = "gpt-4-turbo-preview"
		} else {
			config.LLM.Model = "mistral"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1000
	}
	if config.LLM.Temperature == nil {
		config.LLM.Temperature = ptr(DefaultTemperature)
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 60 * time.Second
	}

	if config.Embedding.Provider == "" {
		config.Embedding.Provider = config.LLM.Provider
	}
	if config.Embedding.Model == "" {
		switch config.Embedding.Provider {
		case "openai":
			config.Embedding.Model = "text-embedding-3-small"
		case "ollama":
			config.Embedding.Model = "nomic-embed-text:latest"
		}
	}
	if config.Embedding.BaseURL == "" && config.Embedding.Provider == "ollama" {
		config.Embedding.BaseURL = "http://localhost:11434"
	}
	if config.Embedding.APIKey == "" && config.Embedding.Provider == config.LLM.Provider {
		config.Embedding.APIKey = config.LLM.APIKey
	}
	if config.Embedding.BatchSize == 0 {
		config.Embedding.BatchSize = 32
	}

	if config.Store.Backend == "" {
		config.Store.Backend = "sqlite"
	}
	if config.Store.Path == "" {
		config.Store.Path = "data/tubeqa.db"
	}
	if config.Store.TableName == "" {
		config.Store.TableName = "video_chunks"
	}
	if config.Store.VectorDim == 0 {
		config.Store.VectorDim = 768
	}
	if config.Store.Metric == "" {
		config.Store.Metric = "cosine"
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 500
	}
	if config.Processor.ChunkOverlap == nil {
		config.Processor.ChunkOverlap = ptr(DefaultChunkOverlap)
	}

	if config.Indexer.Workers == 0 {
		config.Indexer.Workers = 4
	}
	if config.Indexer.BatchSize == 0 {
		config.Indexer.BatchSize = 32
	}

	if config.Search.DefaultResults == 0 {
		config.Search.DefaultResults = 5
	}
	if config.Search.MaxResults == 0 {
		config.Search.MaxResults = 20
	}

	if config.Synth.MaxContextWords == 0 {
		config.Synth.MaxContextWords = 3000
	}
	if config.Synth.SourcePolicy == "" {
		config.Synth.SourcePolicy = "retrieved"
	}

	if config.YouTube.MaxVideos == 0 {
		config.YouTube.MaxVideos = 20
	}
	if config.YouTube.Pacing == 0 {
		config.YouTube.Pacing = 300 * time.Millisecond
	}
	if config.YouTube.Language == "" {
		config.YouTube.Language = "en"
	}
	if config.YouTube.Output == "" {
		config.YouTube.Output = "data/youtuber_context.json"
	}

	if config.Server.Port == 0 {
		config.Server.Port = 8000
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if config.LLM.Provider == "" || config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = baseURL
		}
		if config.Embedding.Provider == "" || config.Embedding.Provider == "ollama" {
			config.Embedding.BaseURL = baseURL
		}
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.APIKey = key
		config.Embedding.APIKey = key
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Store.URL = dbURL
	}
	if backend := os.Getenv("TUBEQA_STORE"); backend != "" {
		config.Store.Backend = backend
	}
	if key := os.Getenv("YOUTUBE_API_KEY"); key != "" {
		config.YouTube.APIKey = key
	}
	if channel := os.Getenv("CHANNEL_ID"); channel != "" {
		config.YouTube.ChannelID = channel
	}
	if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil {
		config.Server.Port = port
	}
}

func ptr[T any](v T) *T { return &v }
