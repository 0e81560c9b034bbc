package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/tubeqa/internal/types"
)

func TestPGOperator(t *testing.T) {
	tests := []struct {
		metric types.Metric
		op     string
	}{
		{types.MetricCosine, "<=>"},
		{types.MetricInnerProduct, "<#>"},
		{types.MetricL2, "<->"},
		{"", "<=>"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.op, pgOperator(tt.metric), tt.metric)
	}
}

func TestNewWithConfig_RejectsTableName(t *testing.T) {
	_, err := NewWithConfig(context.Background(), VectorStoreConfig{
		ConnString: "postgres://localhost/none",
		TableName:  "chunks; DROP TABLE x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestVectorStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	storeContract(t, func(t *testing.T) types.VectorStore {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		table := fmt.Sprintf("tubeqa_test_%d", time.Now().UnixNano())
		vs, err := NewWithConfig(ctx, VectorStoreConfig{
			ConnString: url,
			TableName:  table,
			VectorDim:  3,
		})
		require.NoError(t, err)
		t.Cleanup(func() {
			vs.pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+table)
			vs.pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+table+"_meta")
			vs.Close()
		})
		return vs
	})
}

func TestVectorStore_ConcurrentFirstPin(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	table := fmt.Sprintf("tubeqa_pin_%d", time.Now().UnixNano())
	open := func() *VectorStore {
		vs, err := NewWithConfig(ctx, VectorStoreConfig{ConnString: url, TableName: table, VectorDim: 3})
		require.NoError(t, err)
		t.Cleanup(func() { vs.Close() })
		return vs
	}
	a, b := open(), open()
	t.Cleanup(func() {
		a.pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+table)
		a.pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+table+"_meta")
	})

	errs := make(chan error, 2)
	go func() { errs <- a.PinEmbedder(ctx, "hash/bow-3", 3) }()
	go func() { errs <- b.PinEmbedder(ctx, "openai/text-embedding-3-small", 3) }()

	var failed int
	for range 2 {
		if err := <-errs; err != nil {
			assert.ErrorIs(t, err, types.ErrEmbedderMismatch)
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}
