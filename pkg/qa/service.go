// Package qa wires retrieval and synthesis into the question-answering service
// used by the HTTP, WebSocket, MCP and CLI front ends.
package qa

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/internal/types"
	"github.com/xhad/tubeqa/pkg/logging"
	"github.com/xhad/tubeqa/pkg/retriever"
	"github.com/xhad/tubeqa/pkg/synth"
)

const (
	DefaultResults    = 5
	DefaultMaxResults = 20
	statsScanLimit    = 100
	statsSampleVideos = 10
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

type Config struct {
	DefaultResults int
	MaxResults     int
	Synth          synth.Config
}

// Deps are the capabilities the service runs on. Store and Generator may be
// nil; the service then reports itself not ready and the affected calls fail
// with ErrIndexUnavailable or ErrGenerationUnavailable.
type Deps struct {
	Store     types.VectorStore
	Embedder  types.Embedder
	Generator types.Generator
}

type Health struct {
	IndexReady bool   `json:"index"`
	LLMReady   bool   `json:"llm"`
	Status     string `json:"status"`
}

type Service struct {
	config    Config
	store     types.VectorStore
	retriever *retriever.Retriever
	synth     *synth.Synthesizer
	logger    *zap.Logger
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

func New(deps Deps, config Config, opts ...Option) (*Service, error) {
	if config.DefaultResults <= 0 {
		config.DefaultResults = DefaultResults
	}
	if config.MaxResults <= 0 {
		config.MaxResults = DefaultMaxResults
	}
	if config.DefaultResults > config.MaxResults {
		config.DefaultResults = config.MaxResults
	}

	s := &Service{config: config, store: deps.Store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	if deps.Store != nil {
		r, err := retriever.New(deps.Store, deps.Embedder, retriever.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		s.retriever = r
	}
	s.synth = synth.New(deps.Generator, config.Synth, synth.WithLogger(s.logger))
	return s, nil
}

// Ask answers a question from the n most relevant transcript chunks. n == 0
// selects the default.
func (s *Service) Ask(ctx context.Context, question string, n int) (*models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", types.ErrInvalidInput)
	}
	if n == 0 {
		n = s.config.DefaultResults
	}
	if n < 1 || n > s.config.MaxResults {
		return nil, fmt.Errorf("%w: n_results must be between 1 and %d", types.ErrInvalidInput, s.config.MaxResults)
	}
	if s.retriever == nil {
		return nil, types.ErrIndexUnavailable
	}
	if !s.synth.Ready() {
		return nil, types.ErrGenerationUnavailable
	}

	queryID := uuid.NewString()
	log := s.logger.With(zap.String("query_id", queryID))
	start := time.Now()
	log.Debug("question received", zap.String("question", question), zap.Int("n_results", n))

	results, err := s.retriever.Retrieve(ctx, question, n)
	if err != nil {
		log.Error("retrieval failed", zap.Error(err))
		return nil, err
	}

	answer, err := s.synth.Synthesize(ctx, question, results)
	if err != nil {
		log.Warn("question not answered", zap.Int("results", len(results)), zap.Error(err))
		return nil, err
	}

	log.Info("question answered",
		zap.Int("results", len(results)),
		zap.Int("sources", len(answer.Sources)),
		zap.Duration("elapsed", time.Since(start)))
	return answer, nil
}

// Stats reports index totals and a sample of indexed videos taken from the
// first rows of the index.
func (s *Service) Stats(ctx context.Context) (*models.Stats, error) {
	if s.store == nil {
		return nil, types.ErrIndexUnavailable
	}

	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	videos, err := s.store.CountVideos(ctx)
	if err != nil {
		return nil, fmt.Errorf("count videos: %w", err)
	}
	rows, err := s.store.Scan(ctx, statsScanLimit)
	if err != nil {
		return nil, fmt.Errorf("scan index: %w", err)
	}

	seen := make(map[string]struct{})
	sample := make([]models.VideoRef, 0, statsSampleVideos)
	for _, m := range rows {
		if _, ok := seen[m.VideoID]; ok {
			continue
		}
		seen[m.VideoID] = struct{}{}
		sample = append(sample, models.VideoRef{Title: m.Title, URL: m.URL})
		if len(sample) == statsSampleVideos {
			break
		}
	}

	return &models.Stats{
		TotalChunks:  total,
		TotalVideos:  videos,
		SampleVideos: sample,
	}, nil
}

func (s *Service) Health(ctx context.Context) Health {
	h := Health{LLMReady: s.synth.Ready()}
	if s.store != nil {
		if _, err := s.store.Count(ctx); err == nil {
			h.IndexReady = true
		} else {
			s.logger.Warn("index health check failed", zap.Error(err))
		}
	}
	h.Status = StatusDegraded
	if h.IndexReady && h.LLMReady {
		h.Status = StatusHealthy
	}
	return h
}

func (s *Service) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
