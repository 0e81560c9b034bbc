// Package retriever finds the transcript chunks closest to a question.
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/internal/types"
	"github.com/xhad/tubeqa/pkg/logging"
)

type Retriever struct {
	store    types.VectorStore
	embedder types.Embedder
	logger   *zap.Logger
}

type Option func(*Retriever)

func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = logging.OrNop(l) }
}

// New builds a retriever. The embedder must be the one the index was built with.
func New(store types.VectorStore, embedder types.Embedder, opts ...Option) (*Retriever, error) {
	if store == nil {
		return nil, types.ErrIndexUnavailable
	}
	if embedder == nil {
		return nil, fmt.Errorf("retriever: embedder is required")
	}
	r := &Retriever{store: store, embedder: embedder, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Retrieve returns up to k results ordered by descending similarity. Equal
// similarities keep insertion order. An empty index yields no results and no
// error.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]models.RetrievalResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", types.ErrInvalidInput, k)
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", types.ErrInvalidInput)
	}

	vec, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if err := r.store.CheckEmbedder(ctx, r.embedder.Model(), len(vec)); err != nil {
		return nil, err
	}

	hits, err := r.store.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	metric := r.store.Metric()
	results := make([]models.RetrievalResult, 0, len(hits))
	seqs := make([]int64, 0, len(hits))
	for _, h := range hits {
		if strings.TrimSpace(h.Text) == "" {
			r.logger.Debug("dropping empty chunk", zap.String("id", h.ID))
			continue
		}
		results = append(results, models.RetrievalResult{
			ChunkText:  h.Text,
			Metadata:   h.Metadata,
			Distance:   h.Distance,
			Similarity: metric.Similarity(h.Distance),
		})
		seqs = append(seqs, h.Seq)
	}

	sort.Stable(byRelevance{results, seqs})
	if len(results) > k {
		results = results[:k]
	}

	r.logger.Debug("retrieved chunks", zap.Int("k", k), zap.Int("results", len(results)))
	return results, nil
}

type byRelevance struct {
	results []models.RetrievalResult
	seqs    []int64
}

func (b byRelevance) Len() int { return len(b.results) }

func (b byRelevance) Less(i, j int) bool {
	if b.results[i].Similarity != b.results[j].Similarity {
		return b.results[i].Similarity > b.results[j].Similarity
	}
	return b.seqs[i] < b.seqs[j]
}

func (b byRelevance) Swap(i, j int) {
	b.results[i], b.results[j] = b.results[j], b.results[i]
	b.seqs[i], b.seqs[j] = b.seqs[j], b.seqs[i]
}
