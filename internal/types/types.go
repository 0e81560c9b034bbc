package types

import (
	"context"

	"github.com/xhad/tubeqa/internal/models"
)

// Core interfaces

// VectorStore is a similarity-searchable store of chunk embeddings.
// Upsert must be atomic per chunk: a failure never affects other rows.
type VectorStore interface {
	Upsert(ctx context.Context, chunk models.IndexedChunk) error
	Query(ctx context.Context, embedding []float32, limit int) ([]models.ScoredChunk, error)
	Count(ctx context.Context) (int, error)
	CountVideos(ctx context.Context) (int, error)
	Scan(ctx context.Context, limit int) ([]models.ChunkMetadata, error)
	// PinEmbedder records the embedding model on first use and fails with
	// ErrEmbedderMismatch if the store was built with a different one.
	PinEmbedder(ctx context.Context, model string, dim int) error
	// CheckEmbedder is the read-only half of PinEmbedder. An index with no
	// pinned model accepts anything.
	CheckEmbedder(ctx context.Context, model string, dim int) error
	// PruneVideo deletes the chunks of a video whose index is keep or
	// higher and returns how many were removed.
	PruneVideo(ctx context.Context, videoID string, keep int) (int, error)
	Metric() Metric
	Close() error
}

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Model identifies the embedding function, e.g. "ollama/nomic-embed-text".
	Model() string
}

type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// TranscriptSource supplies ingestion records. Videos without a transcript
// come back with an empty Transcript rather than an error.
type TranscriptSource interface {
	Fetch(ctx context.Context) ([]models.TranscriptRecord, error)
}
