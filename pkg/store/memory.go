package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/internal/types"
)

var _ types.VectorStore = (*MemoryStore)(nil)

// MemoryStore is a brute-force cosine index kept in process memory. It is
// used by tests and for quick local runs; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	nextSeq int64
	model   string
	dim     int
	closed  bool
}

type memoryEntry struct {
	chunk models.IndexedChunk
	seq   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func (m *MemoryStore) Upsert(ctx context.Context, chunk models.IndexedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return types.ErrIndexUnavailable
	}
	if m.dim > 0 && len(chunk.Embedding) != m.dim {
		return fmt.Errorf("%w: vector dimension %d, index expects %d", types.ErrEmbedderMismatch, len(chunk.Embedding), m.dim)
	}

	vec := make([]float32, len(chunk.Embedding))
	copy(vec, chunk.Embedding)
	chunk.Embedding = vec

	// An overwrite keeps the original insertion sequence.
	if e, ok := m.entries[chunk.ID]; ok {
		e.chunk = chunk
		return nil
	}
	m.entries[chunk.ID] = &memoryEntry{chunk: chunk, seq: m.nextSeq}
	m.nextSeq++
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, embedding []float32, limit int) ([]models.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, types.ErrIndexUnavailable
	}
	if limit <= 0 || len(m.entries) == 0 {
		return nil, nil
	}
	if m.dim > 0 && len(embedding) != m.dim {
		return nil, fmt.Errorf("%w: query dimension %d, index expects %d", types.ErrEmbedderMismatch, len(embedding), m.dim)
	}

	scored := make([]models.ScoredChunk, 0, len(m.entries))
	for _, e := range m.entries {
		scored = append(scored, models.ScoredChunk{
			ID:       e.chunk.ID,
			Text:     e.chunk.Text,
			Metadata: e.chunk.Metadata,
			Distance: cosineDistance(embedding, e.chunk.Embedding),
			Seq:      e.seq,
		})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Distance != scored[j].Distance {
			return scored[i].Distance < scored[j].Distance
		}
		return scored[i].Seq < scored[j].Seq
	})
	if limit < len(scored) {
		scored = scored[:limit]
	}
	return scored, nil
}

func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, types.ErrIndexUnavailable
	}
	return len(m.entries), nil
}

func (m *MemoryStore) CountVideos(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, types.ErrIndexUnavailable
	}
	videos := make(map[string]struct{})
	for _, e := range m.entries {
		videos[e.chunk.Metadata.VideoID] = struct{}{}
	}
	return len(videos), nil
}

// Scan returns up to limit metadata records in insertion order.
func (m *MemoryStore) Scan(ctx context.Context, limit int) ([]models.ChunkMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, types.ErrIndexUnavailable
	}
	ordered := make([]*memoryEntry, 0, len(m.entries))
	for _, e := range m.entries {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	if limit > 0 && limit < len(ordered) {
		ordered = ordered[:limit]
	}
	out := make([]models.ChunkMetadata, len(ordered))
	for i, e := range ordered {
		out[i] = e.chunk.Metadata
	}
	return out, nil
}

func (m *MemoryStore) PinEmbedder(ctx context.Context, model string, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return types.ErrIndexUnavailable
	}
	if m.model == "" {
		m.model, m.dim = model, dim
		return nil
	}
	if m.model != model || m.dim != dim {
		return fmt.Errorf("%w: index uses %s (%d dims), got %s (%d dims)", types.ErrEmbedderMismatch, m.model, m.dim, model, dim)
	}
	return nil
}

func (m *MemoryStore) CheckEmbedder(ctx context.Context, model string, dim int) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return types.ErrIndexUnavailable
	}
	if m.model != "" && (m.model != model || m.dim != dim) {
		return fmt.Errorf("%w: index uses %s (%d dims), got %s (%d dims)", types.ErrEmbedderMismatch, m.model, m.dim, model, dim)
	}
	return nil
}

func (m *MemoryStore) PruneVideo(ctx context.Context, videoID string, keep int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, types.ErrIndexUnavailable
	}
	var removed int
	for id, e := range m.entries {
		if e.chunk.Metadata.VideoID == videoID && e.chunk.Metadata.ChunkIndex >= keep {
			delete(m.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Metric() types.Metric { return types.MetricCosine }

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
