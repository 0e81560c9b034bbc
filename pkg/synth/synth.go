// Package synth turns retrieved transcript excerpts into a grounded answer.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/internal/types"
	"github.com/xhad/tubeqa/pkg/logging"
)

const DefaultMaxContextWords = 3000

// SourcePolicy decides which included results are reported as sources.
type SourcePolicy string

const (
	// SourcesRetrieved reports every result that went into the context.
	SourcesRetrieved SourcePolicy = "retrieved"
	// SourcesCited reports only results whose video title appears in the
	// answer, or every included result when none does.
	SourcesCited SourcePolicy = "cited"
)

const SystemPrompt = `You are a helpful assistant that answers questions about YouTube videos.
You will be given relevant excerpts from video transcripts. Use only this information to answer the user's question.
Always cite which video(s) you're referencing in your answer by title.
If the context doesn't contain enough information to answer the question, say so.`

const contextSeparator = "\n---\n"

var errEmptyAnswer = errors.New("model returned an empty answer")

type Config struct {
	MaxContextWords int
	SourcePolicy    SourcePolicy
}

type Synthesizer struct {
	config    Config
	generator types.Generator
	logger    *zap.Logger
}

type Option func(*Synthesizer)

func WithLogger(l *zap.Logger) Option {
	return func(s *Synthesizer) { s.logger = logging.OrNop(l) }
}

// New returns a Synthesizer. A nil generator is allowed; Synthesize then
// fails with ErrGenerationUnavailable once there is context to answer from.
func New(generator types.Generator, config Config, opts ...Option) *Synthesizer {
	if config.MaxContextWords <= 0 {
		config.MaxContextWords = DefaultMaxContextWords
	}
	if config.SourcePolicy == "" {
		config.SourcePolicy = SourcesRetrieved
	}
	s := &Synthesizer{config: config, generator: generator, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Synthesizer) Ready() bool { return s.generator != nil }

// Synthesize answers question from results. No partial answer is ever
// returned: either the full Answer or an error.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, results []models.RetrievalResult) (*models.Answer, error) {
	if len(results) == 0 {
		return nil, &types.NoContextError{Question: question}
	}
	if s.generator == nil {
		return nil, types.ErrGenerationUnavailable
	}

	contextText, included := BuildContext(results, s.config.MaxContextWords)
	if len(included) < len(results) {
		s.logger.Debug("context truncated",
			zap.Int("included", len(included)),
			zap.Int("retrieved", len(results)),
			zap.Int("max_words", s.config.MaxContextWords))
	}

	text, err := s.generator.Generate(ctx, SystemPrompt, UserPrompt(question, contextText))
	if err != nil {
		return nil, &types.GenerationError{Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &types.GenerationError{Err: errEmptyAnswer}
	}

	return &models.Answer{
		Text:    text,
		Sources: s.sources(text, included),
		Query:   question,
	}, nil
}

func (s *Synthesizer) sources(answer string, included []models.RetrievalResult) []models.SourceInfo {
	picked := included
	if s.config.SourcePolicy == SourcesCited {
		lower := strings.ToLower(answer)
		var cited []models.RetrievalResult
		for _, r := range included {
			if strings.Contains(lower, strings.ToLower(r.Metadata.Title)) {
				cited = append(cited, r)
			}
		}
		if len(cited) > 0 {
			picked = cited
		}
	}

	out := make([]models.SourceInfo, len(picked))
	for i, r := range picked {
		out[i] = models.SourceInfo{
			VideoID:        r.Metadata.VideoID,
			Title:          r.Metadata.Title,
			URL:            r.Metadata.URL,
			ChunkIndex:     r.Metadata.ChunkIndex,
			RelevanceScore: r.Similarity,
		}
	}
	return out
}

// BuildContext formats results in order until the next one would push the
// chunk word total past maxWords. The first result is always included.
func BuildContext(results []models.RetrievalResult, maxWords int) (string, []models.RetrievalResult) {
	var (
		parts []string
		words int
	)
	for i, r := range results {
		n := len(strings.Fields(r.ChunkText))
		if i > 0 && maxWords > 0 && words+n > maxWords {
			break
		}
		words += n
		parts = append(parts, fmt.Sprintf("[Video %d: %s]\n[URL: %s]\n%s", i+1, r.Metadata.Title, r.Metadata.URL, r.ChunkText))
	}
	return strings.Join(parts, contextSeparator), results[:len(parts)]
}

func UserPrompt(question, contextText string) string {
	return fmt.Sprintf("Context from YouTube videos:\n%s\n\nQuestion: %s\n\nAnswer the question based on the context above. Be specific and cite the video titles.",
		contextText, question)
}
