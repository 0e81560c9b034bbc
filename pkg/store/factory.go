package store

import (
	"context"
	"fmt"

	"github.com/xhad/tubeqa/internal/types"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPGVector = "pgvector"
)

type Config struct {
	Backend   string
	Path      string // sqlite file
	URL       string // postgres connection string
	TableName string
	VectorDim int
	Metric    types.Metric
}

// Open returns the similarity store selected by config.Backend.
func Open(ctx context.Context, config Config) (types.VectorStore, error) {
	switch config.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case "", BackendSQLite:
		path := config.Path
		if path == "" {
			path = "data/tubeqa.db"
		}
		s, err := NewSQLiteStore(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendPGVector:
		if config.URL == "" {
			return nil, fmt.Errorf("%w: pgvector backend needs a database url", types.ErrIndexUnavailable)
		}
		s, err := NewWithConfig(ctx, VectorStoreConfig{
			ConnString: config.URL,
			TableName:  config.TableName,
			VectorDim:  config.VectorDim,
			Metric:     config.Metric,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", config.Backend)
	}
}
