package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/internal/types"
)

var _ types.VectorStore = (*VectorStore)(nil)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	Metric     types.Metric
}

// VectorStore is a PostgreSQL + pgvector similarity store.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// pgOperator maps a metric to its pgvector distance operator.
func pgOperator(m types.Metric) string {
	switch m {
	case types.MetricInnerProduct:
		return "<#>"
	case types.MetricL2:
		return "<->"
	default:
		return "<=>"
	}
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "video_chunks"
	}
	if !identRE.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q", config.TableName)
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}
	if config.Metric == "" {
		config.Metric = types.MetricCosine
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to database: %v", types.ErrIndexUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to reach database: %v", types.ErrIndexUnavailable, err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", types.ErrIndexUnavailable, err)
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			seq BIGSERIAL,
			id TEXT PRIMARY KEY,
			video_id TEXT NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err = vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createMeta := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`, vs.config.TableName)

	if _, err = vs.pool.Exec(ctx, createMeta); err != nil {
		return fmt.Errorf("failed to create meta table: %v", err)
	}

	// Queries order by (distance, seq) and scan exactly; an approximate
	// vector index could not serve that ordering.
	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_video_idx
		ON %s (video_id, chunk_index)`,
		vs.config.TableName, vs.config.TableName)

	if _, err = vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return nil
}

// Upsert writes one chunk in its own implicit transaction.
func (vs *VectorStore) Upsert(ctx context.Context, chunk models.IndexedChunk) error {
	if len(chunk.Embedding) != vs.config.VectorDim {
		return fmt.Errorf("%w: vector dimension %d, table expects %d", types.ErrEmbedderMismatch, len(chunk.Embedding), vs.config.VectorDim)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, video_id, title, url, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			video_id = EXCLUDED.video_id,
			title = EXCLUDED.title,
			url = EXCLUDED.url,
			chunk_index = EXCLUDED.chunk_index,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`,
		vs.config.TableName)

	_, err := vs.pool.Exec(ctx, stmt,
		chunk.ID,
		chunk.Metadata.VideoID,
		sanitizeUTF8(chunk.Metadata.Title),
		chunk.Metadata.URL,
		chunk.Metadata.ChunkIndex,
		sanitizeUTF8(chunk.Text),
		pgvector.NewVector(chunk.Embedding),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk %s: %w", chunk.ID, err)
	}
	return nil
}

func (vs *VectorStore) Query(ctx context.Context, queryEmbedding []float32, limit int) ([]models.ScoredChunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	if len(queryEmbedding) != vs.config.VectorDim {
		return nil, fmt.Errorf("%w: query dimension %d, table expects %d", types.ErrEmbedderMismatch, len(queryEmbedding), vs.config.VectorDim)
	}

	op := pgOperator(vs.config.Metric)
	query := fmt.Sprintf(`
		SELECT id, video_id, title, url, chunk_index, content, seq, embedding %s $1 AS distance
		FROM %s
		ORDER BY distance, seq
		LIMIT $2`,
		op, vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, pgvector.NewVector(queryEmbedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.ScoredChunk
	for rows.Next() {
		var sc models.ScoredChunk
		err := rows.Scan(
			&sc.ID,
			&sc.Metadata.VideoID,
			&sc.Metadata.Title,
			&sc.Metadata.URL,
			&sc.Metadata.ChunkIndex,
			&sc.Text,
			&sc.Seq,
			&sc.Distance,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		chunks = append(chunks, sc)
	}

	return chunks, rows.Err()
}

func (vs *VectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := vs.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", vs.config.TableName)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (vs *VectorStore) CountVideos(ctx context.Context) (int, error) {
	var n int
	err := vs.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(DISTINCT video_id) FROM %s", vs.config.TableName)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count videos: %w", err)
	}
	return n, nil
}

func (vs *VectorStore) Scan(ctx context.Context, limit int) ([]models.ChunkMetadata, error) {
	query := fmt.Sprintf("SELECT video_id, title, url, chunk_index FROM %s ORDER BY seq", vs.config.TableName)
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := vs.pool.Query(ctx, query, args...)
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

func (vs *VectorStore) PinEmbedder(ctx context.Context, model string, dim int) error {
	if dim != vs.config.VectorDim {
		return fmt.Errorf("%w: embedder produces %d dims, table expects %d", types.ErrEmbedderMismatch, dim, vs.config.VectorDim)
	}

	pinned, err := vs.pinnedModel(ctx)
	if err != nil {
		return err
	}
	if pinned == "" {
		_, err = vs.pool.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s_meta (key, value) VALUES ('embedding_model', $1), ('embedding_dim', $2)
				ON CONFLICT (key) DO NOTHING`, vs.config.TableName),
			model, strconv.Itoa(dim))
		if err != nil {
			return fmt.Errorf("failed to pin embedder: %w", err)
		}
		// A concurrent writer may have pinned first.
		if pinned, err = vs.pinnedModel(ctx); err != nil {
			return err
		}
	}
	if pinned != model {
		return fmt.Errorf("%w: index uses %s, got %s", types.ErrEmbedderMismatch, pinned, model)
	}
	return nil
}

func (vs *VectorStore) CheckEmbedder(ctx context.Context, model string, dim int) error {
	if dim != vs.config.VectorDim {
		return fmt.Errorf("%w: embedder produces %d dims, table expects %d", types.ErrEmbedderMismatch, dim, vs.config.VectorDim)
	}
	pinned, err := vs.pinnedModel(ctx)
	if err != nil {
		return err
	}
	if pinned != "" && pinned != model {
		return fmt.Errorf("%w: index uses %s, got %s", types.ErrEmbedderMismatch, pinned, model)
	}
	return nil
}

// pinnedModel returns the recorded embedding model, or "" if none is pinned.
func (vs *VectorStore) pinnedModel(ctx context.Context) (string, error) {
	var pinned string
	err := vs.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT value FROM %s_meta WHERE key = 'embedding_model'", vs.config.TableName),
	).Scan(&pinned)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read index metadata: %w", err)
	}
	return pinned, nil
}

func (vs *VectorStore) PruneVideo(ctx context.Context, videoID string, keep int) (int, error) {
	tag, err := vs.pool.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE video_id = $1 AND chunk_index >= $2", vs.config.TableName),
		videoID, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune chunks of %s: %w", videoID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (vs *VectorStore) Metric() types.Metric { return vs.config.Metric }

func (vs *VectorStore) Close() error {
	if vs.pool != nil {
		vs.pool.Close()
	}
	return nil
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
