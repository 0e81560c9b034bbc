package indexer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/internal/types"
	"github.com/xhad/tubeqa/pkg/llm"
	"github.com/xhad/tubeqa/pkg/processor"
	"github.com/xhad/tubeqa/pkg/store"
)

func hashEmbedder(t *testing.T) *llm.Embedder {
	t.Helper()
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: llm.ProviderHash, Dimensions: 32})
	require.NoError(t, err)
	return emb
}

func record(id, title, transcript string) models.TranscriptRecord {
	return models.TranscriptRecord{
		Video:      models.Video{VideoID: id, Title: title, URL: models.WatchURL(id)},
		Transcript: transcript,
	}
}

func input(videoID, title string, idx int, text string) ChunkInput {
	return ChunkInput{
		Chunk: models.Chunk{VideoID: videoID, ChunkIndex: idx, Text: text},
		Metadata: models.ChunkMetadata{
			VideoID:    videoID,
			Title:      title,
			URL:        models.WatchURL(videoID),
			ChunkIndex: idx,
		},
	}
}

// flakyEmbedder fails any batch containing a text with the marker.
type flakyEmbedder struct {
	marker string
}

func (f *flakyEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, f.marker) {
			return nil, errors.New("embedding service unavailable")
		}
		out[i] = []float32{1, float32(len(t))}
	}
	return out, nil
}

func (f *flakyEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return []float32{1, float32(len(text))}, nil
}

func (f *flakyEmbedder) Model() string { return "test/flaky" }

// rejectingStore fails upserts for one chunk id.
type rejectingStore struct {
	*store.MemoryStore
	rejectID string
}

func (s *rejectingStore) Upsert(ctx context.Context, c models.IndexedChunk) error {
	if c.ID == s.rejectID {
		return errors.New("disk full")
	}
	return s.MemoryStore.Upsert(ctx, c)
}

func TestNew(t *testing.T) {
	_, err := New(nil, hashEmbedder(t), processor.NewWithConfig(processor.ProcessorConfig{}), Config{})
	assert.ErrorIs(t, err, types.ErrIndexUnavailable)

	_, err = New(store.NewMemoryStore(), nil, processor.NewWithConfig(processor.ProcessorConfig{}), Config{})
	assert.Error(t, err)

	ix, err := New(store.NewMemoryStore(), hashEmbedder(t), processor.NewWithConfig(processor.ProcessorConfig{}), Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkers, ix.config.Workers)
	assert.Equal(t, DefaultBatchSize, ix.config.BatchSize)
}

func TestIndexVideos(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	var (
		mu       sync.Mutex
		progress = map[string]int{}
	)
	proc := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 5, ChunkOverlap: 1})
	ix, err := New(s, hashEmbedder(t), proc, Config{
		Workers:   2,
		BatchSize: 2,
		OnProgress: func(videoID string, chunks int) {
			mu.Lock()
			progress[videoID] = chunks
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	records := []models.TranscriptRecord{
		record("v1", "Sky talk", "The sky is blue. The grass is green. Clouds are white and fluffy today."),
		record("v2", "Silent film", "   "),
		record("v3", "Short clip", "Hello there."),
	}
	n, err := ix.IndexVideos(ctx, records)
	require.NoError(t, err)

	total, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, n)
	assert.Greater(t, n, 2)

	videos, err := s.CountVideos(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, videos)

	assert.Len(t, progress, 2)
	assert.Equal(t, 1, progress["v3"])
	assert.NotContains(t, progress, "v2")

	// chunks of one video are written in order
	meta, err := s.Scan(ctx, 0)
	require.NoError(t, err)
	last := map[string]int{}
	for _, m := range meta {
		if prev, ok := last[m.VideoID]; ok {
			assert.Equal(t, prev+1, m.ChunkIndex)
		}
		last[m.VideoID] = m.ChunkIndex
	}
}

func TestIndexVideos_PrunesStaleChunks(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	proc := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 5})
	ix, err := New(s, hashEmbedder(t), proc, Config{})
	require.NoError(t, err)

	long := record("v1", "Sky talk", "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen")
	before, err := ix.IndexVideos(ctx, []models.TranscriptRecord{long, record("v2", "Other", "keep this one")})
	require.NoError(t, err)
	require.Greater(t, before, 3)

	short := record("v1", "Sky talk", "one two three four five six")
	after, err := ix.IndexVideos(ctx, []models.TranscriptRecord{short})
	require.NoError(t, err)
	require.Less(t, after, before-1)

	meta, err := s.Scan(ctx, 0)
	require.NoError(t, err)
	var v1 int
	for _, m := range meta {
		if m.VideoID == "v1" {
			v1++
			assert.Less(t, m.ChunkIndex, after)
		}
	}
	assert.Equal(t, after, v1)

	// other videos are untouched
	videos, err := s.CountVideos(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, videos)
}

func TestIndexVideos_FailureKeepsOldChunks(t *testing.T) {
	ctx := context.Background()
	s := &rejectingStore{MemoryStore: store.NewMemoryStore()}
	proc := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 5})
	ix, err := New(s, hashEmbedder(t), proc, Config{})
	require.NoError(t, err)

	before, err := ix.IndexVideos(ctx, []models.TranscriptRecord{
		record("v1", "Sky talk", "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen"),
	})
	require.NoError(t, err)

	s.rejectID = "v1_0"
	_, err = ix.IndexVideos(ctx, []models.TranscriptRecord{record("v1", "Sky talk", "one two three four five six")})
	require.Error(t, err)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, count)
}

func TestIndex_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	ix, err := New(s, hashEmbedder(t), processor.NewWithConfig(processor.ProcessorConfig{}), Config{})
	require.NoError(t, err)

	inputs := []ChunkInput{
		input("v1", "Sky", 0, "the sky is blue"),
		input("v1", "Sky", 1, "the grass is green"),
	}
	n, err := ix.Index(ctx, inputs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = ix.Index(ctx, inputs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// a partial batch never removes chunks it was not given
	n, err = ix.Index(ctx, inputs[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestIndex_RejectsInvalidMetadata(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	ix, err := New(s, hashEmbedder(t), processor.NewWithConfig(processor.ProcessorConfig{}), Config{})
	require.NoError(t, err)

	n, err := ix.Index(ctx, []ChunkInput{
		input("v1", "Sky", 0, "the sky is blue"),
		input("v2", "", 0, "untitled video"),
		input("v3", "Empty", 0, ""),
	})
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, types.ErrInvalidMetadata)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
	assert.Contains(t, err.Error(), "title")

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIndex_IsolatesEmbeddingFailures(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	ix, err := New(s, &flakyEmbedder{marker: "boom"}, processor.NewWithConfig(processor.ProcessorConfig{}), Config{BatchSize: 1})
	require.NoError(t, err)

	n, err := ix.Index(ctx, []ChunkInput{
		input("v1", "A", 0, "fine"),
		input("v1", "A", 1, "boom"),
		input("v1", "A", 2, "also fine"),
		input("v2", "B", 0, "fine too"),
	})
	assert.Equal(t, 3, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding service unavailable")

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestIndex_IsolatesStoreFailures(t *testing.T) {
	ctx := context.Background()
	s := &rejectingStore{MemoryStore: store.NewMemoryStore(), rejectID: "v1_1"}
	ix, err := New(s, hashEmbedder(t), processor.NewWithConfig(processor.ProcessorConfig{}), Config{})
	require.NoError(t, err)

	n, err := ix.Index(ctx, []ChunkInput{
		input("v1", "A", 0, "zero"),
		input("v1", "A", 1, "one"),
		input("v1", "A", 2, "two"),
	})
	assert.Equal(t, 2, n)
	assert.ErrorContains(t, err, "disk full")
}

func TestIndex_EmbedderMismatch(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.PinEmbedder(ctx, "ollama/nomic-embed-text:latest", 768))

	ix, err := New(s, hashEmbedder(t), processor.NewWithConfig(processor.ProcessorConfig{}), Config{})
	require.NoError(t, err)

	n, err := ix.Index(ctx, []ChunkInput{input("v1", "A", 0, "text")})
	assert.Zero(t, n)
	assert.ErrorIs(t, err, types.ErrEmbedderMismatch)
}

func TestIndex_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix, err := New(store.NewMemoryStore(), hashEmbedder(t), processor.NewWithConfig(processor.ProcessorConfig{}), Config{})
	require.NoError(t, err)

	n, err := ix.Index(ctx, []ChunkInput{input("v1", "A", 0, "text")})
	assert.Zero(t, n)
	assert.ErrorIs(t, err, context.Canceled)
}
