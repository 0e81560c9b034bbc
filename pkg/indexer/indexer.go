// Package indexer embeds transcript chunks and writes them to a similarity store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/internal/types"
	"github.com/xhad/tubeqa/pkg/logging"
	"github.com/xhad/tubeqa/pkg/processor"
)

const (
	DefaultWorkers   = 4
	DefaultBatchSize = 32
)

type Config struct {
	Workers   int // videos indexed concurrently
	BatchSize int // chunks per embedding call
	// OnProgress is called from worker goroutines once a video is done.
	OnProgress func(videoID string, chunks int)
}

// ChunkInput pairs chunk text with the metadata stored next to its vector.
type ChunkInput struct {
	Chunk    models.Chunk
	Metadata models.ChunkMetadata
}

type Indexer struct {
	config    Config
	store     types.VectorStore
	embedder  types.Embedder
	processor processor.Processor
	logger    *zap.Logger

	pinMu  sync.Mutex
	pinned bool
}

type Option func(*Indexer)

func WithLogger(l *zap.Logger) Option {
	return func(ix *Indexer) { ix.logger = logging.OrNop(l) }
}

func New(store types.VectorStore, embedder types.Embedder, proc processor.Processor, config Config, opts ...Option) (*Indexer, error) {
	if store == nil {
		return nil, types.ErrIndexUnavailable
	}
	if embedder == nil {
		return nil, fmt.Errorf("indexer: embedder is required")
	}
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	ix := &Indexer{
		config:    config,
		store:     store,
		embedder:  embedder,
		processor: proc,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// IndexVideos chunks the transcripts and indexes every chunk. Records with an
// empty transcript are skipped. A video that now yields fewer chunks than
// an earlier run loses its trailing chunks once every new chunk is written.
// It returns the number of chunks written.
func (ix *Indexer) IndexVideos(ctx context.Context, records []models.TranscriptRecord) (int, error) {
	videos := ix.processor.Process(records)
	if skipped := len(records) - len(videos); skipped > 0 {
		ix.logger.Info("skipping videos without transcript", zap.Int("count", skipped))
	}

	var inputs []ChunkInput
	for _, v := range videos {
		url := v.URL
		if url == "" {
			url = models.WatchURL(v.VideoID)
		}
		for _, c := range v.Chunks {
			inputs = append(inputs, ChunkInput{
				Chunk: c,
				Metadata: models.ChunkMetadata{
					VideoID:    v.VideoID,
					Title:      v.Title,
					URL:        url,
					ChunkIndex: c.ChunkIndex,
				},
			})
		}
	}
	return ix.index(ctx, inputs, true)
}

// Index embeds and upserts chunks. Chunks of the same video are written in
// input order; different videos are indexed in parallel. Failures are
// isolated per chunk: the count covers the writes that succeeded and the
// error joins the rest.
func (ix *Indexer) Index(ctx context.Context, inputs []ChunkInput) (int, error) {
	return ix.index(ctx, inputs, false)
}

// index writes inputs; with prune set each group is taken to be the whole
// video, so chunks stored past its end are deleted.
func (ix *Indexer) index(ctx context.Context, inputs []ChunkInput, prune bool) (int, error) {
	var (
		mu   sync.Mutex
		errs []error
	)
	fail := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	var order []string
	groups := make(map[string][]ChunkInput)
	for _, in := range inputs {
		if err := in.Metadata.Validate(); err != nil {
			fail(fmt.Errorf("%w: chunk %d of %q: %v", types.ErrInvalidMetadata, in.Metadata.ChunkIndex, in.Metadata.VideoID, err))
			continue
		}
		if in.Chunk.Text == "" {
			fail(fmt.Errorf("%w: chunk %s has no text", types.ErrInvalidInput, models.ChunkID(in.Metadata.VideoID, in.Metadata.ChunkIndex)))
			continue
		}
		id := in.Metadata.VideoID
		if _, ok := groups[id]; !ok {
			order = append(order, id)
		}
		groups[id] = append(groups[id], in)
	}

	var written atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.config.Workers)
	for _, videoID := range order {
		videoID, chunks := videoID, groups[videoID]
		g.Go(func() error {
			n, err := ix.indexVideo(gctx, chunks)
			written.Add(int64(n))
			if err == nil && prune {
				err = ix.prune(gctx, videoID, chunks[len(chunks)-1].Metadata.ChunkIndex+1)
			}
			if err != nil {
				ix.logger.Warn("indexing video failed", zap.String("video_id", videoID), zap.Int("written", n), zap.Error(err))
				fail(err)
			} else {
				ix.logger.Debug("indexed video", zap.String("video_id", videoID), zap.Int("chunks", n))
			}
			if ix.config.OnProgress != nil {
				ix.config.OnProgress(videoID, n)
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		fail(err)
	}

	return int(written.Load()), errors.Join(errs...)
}

func (ix *Indexer) indexVideo(ctx context.Context, chunks []ChunkInput) (int, error) {
	var (
		written int
		errs    []error
	)
	for start := 0; start < len(chunks); start += ix.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return written, errors.Join(append(errs, err)...)
		}
		end := min(start+ix.config.BatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Chunk.Text
		}
		vectors, err := ix.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			errs = append(errs, fmt.Errorf("embed chunks %d-%d of %s: %w", start, end-1, batch[0].Metadata.VideoID, err))
			continue
		}
		if len(vectors) != len(batch) {
			errs = append(errs, fmt.Errorf("embed chunks of %s: got %d vectors for %d texts", batch[0].Metadata.VideoID, len(vectors), len(batch)))
			continue
		}
		if err := ix.pin(ctx, len(vectors[0])); err != nil {
			return written, errors.Join(append(errs, err)...)
		}

		for i, c := range batch {
			err := ix.store.Upsert(ctx, models.IndexedChunk{
				ID:        models.ChunkID(c.Metadata.VideoID, c.Metadata.ChunkIndex),
				Text:      c.Chunk.Text,
				Embedding: vectors[i],
				Metadata:  c.Metadata,
			})
			if err != nil {
				errs = append(errs, err)
				continue
			}
			written++
		}
	}
	return written, errors.Join(errs...)
}

func (ix *Indexer) prune(ctx context.Context, videoID string, keep int) error {
	removed, err := ix.store.PruneVideo(ctx, videoID, keep)
	if err != nil {
		return fmt.Errorf("prune stale chunks of %s: %w", videoID, err)
	}
	if removed > 0 {
		ix.logger.Info("removed stale chunks", zap.String("video_id", videoID), zap.Int("removed", removed))
	}
	return nil
}

// pin records the embedding function on the store before the first write.
func (ix *Indexer) pin(ctx context.Context, dim int) error {
	ix.pinMu.Lock()
	defer ix.pinMu.Unlock()
	if ix.pinned {
		return nil
	}
	if err := ix.store.PinEmbedder(ctx, ix.embedder.Model(), dim); err != nil {
		return err
	}
	ix.pinned = true
	return nil
}
