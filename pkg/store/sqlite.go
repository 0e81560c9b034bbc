package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/internal/types"
)

var _ types.VectorStore = (*SQLiteStore)(nil)

// SQLiteStore persists chunks and their vectors in a single SQLite file and
// ranks them by brute-force cosine distance. Each upsert is one autocommit
// statement, so a crash mid-batch leaves earlier rows intact.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	video_id    TEXT NOT NULL,
	title       TEXT NOT NULL,
	url         TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content     TEXT NOT NULL,
	embedding   BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_video ON chunks(video_id, chunk_index);

CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// NewSQLiteStore opens or creates the database at dbPath.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create database directory: %v", types.ErrIndexUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", types.ErrIndexUnavailable, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", types.ErrIndexUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: initialize schema: %v", types.ErrIndexUnavailable, err)
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Upsert(ctx context.Context, chunk models.IndexedChunk) error {
	if dim, err := s.pinnedDim(ctx); err != nil {
		return err
	} else if dim > 0 && dim != len(chunk.Embedding) {
		return fmt.Errorf("%w: vector dimension %d, index expects %d", types.ErrEmbedderMismatch, len(chunk.Embedding), dim)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, video_id, title, url, chunk_index, content, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			video_id = excluded.video_id,
			title = excluded.title,
			url = excluded.url,
			chunk_index = excluded.chunk_index,
			content = excluded.content,
			embedding = excluded.embedding`,
		chunk.ID,
		chunk.Metadata.VideoID,
		chunk.Metadata.Title,
		chunk.Metadata.URL,
		chunk.Metadata.ChunkIndex,
		sanitizeUTF8(chunk.Text),
		float32SliceToBytes(chunk.Embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", chunk.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, embedding []float32, limit int) ([]models.ScoredChunk, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, video_id, title, url, chunk_index, content, embedding
		FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var scored []models.ScoredChunk
	for rows.Next() {
		var (
			sc  models.ScoredChunk
			raw []byte
		)
		if err := rows.Scan(&sc.Seq, &sc.ID, &sc.Metadata.VideoID, &sc.Metadata.Title,
			&sc.Metadata.URL, &sc.Metadata.ChunkIndex, &sc.Text, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		vec := bytesToFloat32Slice(raw)
		if len(vec) != len(embedding) {
			return nil, fmt.Errorf("%w: query dimension %d, index has %d", types.ErrEmbedderMismatch, len(embedding), len(vec))
		}
		sc.Distance = cosineDistance(embedding, vec)
		scored = append(scored, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
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

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) CountVideos(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT video_id) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count videos: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Scan(ctx context.Context, limit int) ([]models.ChunkMetadata, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT video_id, title, url, chunk_index
		FROM chunks
		ORDER BY seq
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan metadata: %w", err)
	}
	defer rows.Close()

	var out []models.ChunkMetadata
	for rows.Next() {
		var m models.ChunkMetadata
		if err := rows.Scan(&m.VideoID, &m.Title, &m.URL, &m.ChunkIndex); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) PinEmbedder(ctx context.Context, model string, dim int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	pin, err := readPin(ctx, tx)
	if err != nil {
		return err
	}
	if pin.model != "" {
		return pin.check(model, dim)
	}

	for k, v := range map[string]string{"embedding_model": model, "embedding_dim": strconv.Itoa(dim)} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to pin embedder: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) CheckEmbedder(ctx context.Context, model string, dim int) error {
	pin, err := readPin(ctx, s.db)
	if err != nil {
		return err
	}
	if pin.model == "" {
		return nil
	}
	return pin.check(model, dim)
}

func (s *SQLiteStore) PruneVideo(ctx context.Context, videoID string, keep int) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE video_id = ? AND chunk_index >= ?`, videoID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune chunks of %s: %w", videoID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune chunks of %s: %w", videoID, err)
	}
	return int(n), nil
}

type embedderPin struct {
	model string
	dim   string
}

func (p embedderPin) check(model string, dim int) error {
	if p.model != model || p.dim != strconv.Itoa(dim) {
		return fmt.Errorf("%w: index uses %s (%s dims), got %s (%d dims)",
			types.ErrEmbedderMismatch, p.model, p.dim, model, dim)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// readPin returns the pinned embedder, or a zero pin if none is recorded.
func readPin(ctx context.Context, q queryer) (embedderPin, error) {
	var pin embedderPin
	rows, err := q.QueryContext(ctx, `SELECT key, value FROM index_meta WHERE key IN ('embedding_model', 'embedding_dim')`)
	if err != nil {
		return pin, fmt.Errorf("failed to read index metadata: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return pin, fmt.Errorf("failed to scan index metadata: %w", err)
		}
		switch k {
		case "embedding_model":
			pin.model = v
		case "embedding_dim":
			pin.dim = v
		}
	}
	return pin, rows.Err()
}

func (s *SQLiteStore) pinnedDim(ctx context.Context) (int, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'embedding_dim'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read index metadata: %w", err)
	}
	return strconv.Atoi(v)
}

func (s *SQLiteStore) Metric() types.Metric { return types.MetricCosine }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
