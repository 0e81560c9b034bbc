package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xhad/tubeqa/internal/types"
	"github.com/xhad/tubeqa/pkg/indexer"
	"github.com/xhad/tubeqa/pkg/llm"
	"github.com/xhad/tubeqa/pkg/processor"
	"github.com/xhad/tubeqa/pkg/qa"
	"github.com/xhad/tubeqa/pkg/store"
	"github.com/xhad/tubeqa/pkg/synth"
)

func openStore(ctx context.Context) (types.VectorStore, error) {
	return store.Open(ctx, store.Config{
		Backend:   cfg.Store.Backend,
		Path:      cfg.Store.Path,
		URL:       cfg.Store.URL,
		TableName: cfg.Store.TableName,
		VectorDim: cfg.Store.VectorDim,
		Metric:    types.Metric(cfg.Store.Metric),
	})
}

func newEmbedder() (*llm.Embedder, error) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		BatchSize:  cfg.Embedding.BatchSize,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	return emb, nil
}

// newGenerator returns nil when the language model cannot be set up; the
// service then reports generation as unavailable.
func newGenerator() types.Generator {
	engine, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.SamplingTemperature(),
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Warn("language model unavailable", zap.Error(err))
		return nil
	}
	return engine
}

func newProcessor() processor.Processor {
	return processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:        cfg.Processor.ChunkSize,
		ChunkOverlap:     cfg.Processor.Overlap(),
		StripAnnotations: cfg.Processor.StripAnnotationsEnabled(),
		Lowercase:        cfg.Processor.Lowercase,
		RemoveStopwords:  cfg.Processor.RemoveStopwords,
	})
}

func newIndexer(st types.VectorStore, emb types.Embedder, onProgress func(videoID string, chunks int)) (*indexer.Indexer, error) {
	return indexer.New(st, emb, newProcessor(), indexer.Config{
		Workers:    cfg.Indexer.Workers,
		BatchSize:  cfg.Indexer.BatchSize,
		OnProgress: onProgress,
	}, indexer.WithLogger(logger))
}

// newService wires the question-answering service. An unreachable store
// leaves the service running degraded rather than failing startup.
func newService(ctx context.Context) (*qa.Service, error) {
	emb, err := newEmbedder()
	if err != nil {
		return nil, err
	}

	deps := qa.Deps{Embedder: emb, Generator: newGenerator()}
	st, err := openStore(ctx)
	if err != nil {
		logger.Warn("index unavailable", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	} else {
		deps.Store = st
	}

	return qa.New(deps, qa.Config{
		DefaultResults: cfg.Search.DefaultResults,
		MaxResults:     cfg.Search.MaxResults,
		Synth: synth.Config{
			MaxContextWords: cfg.Synth.MaxContextWords,
			SourcePolicy:    synth.SourcePolicy(cfg.Synth.SourcePolicy),
		},
	}, qa.WithLogger(logger))
}
