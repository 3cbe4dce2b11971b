package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secrag/internal/domain"
)

func record(id, ticker string, year int, v ...float32) domain.VectorRecord {
	return domain.VectorRecord{
		ID:     id,
		Values: v,
		Metadata: domain.ChunkMetadata{
			Ticker:     ticker,
			FormType:   "10K",
			FiscalYear: year,
			ChunkType:  "narrative",
			Text:       id,
		},
	}
}

func TestQueryRanksAndFilters(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{
		record("aapl-1", "AAPL", 2023, 1, 0),
		record("aapl-2", "AAPL", 2024, 0.8, 0.2),
		record("msft-1", "MSFT", 2023, 1, 0.1),
	}))

	got, err := s.Query(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "aapl-1", got[0].ID)

	got, err = s.Query(ctx, []float32{1, 0}, 10, domain.Filter{domain.FieldTicker: "AAPL", domain.FieldFiscalYear: 2024})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "aapl-2", got[0].ID)
	assert.Equal(t, "AAPL", got[0].Metadata.Ticker)
}

func TestUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{record("x", "AAPL", 2023, 1, 0)}))
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{record("x", "MSFT", 2023, 0, 1)}))
	assert.Equal(t, 1, s.Len())

	got, err := s.Query(ctx, []float32{0, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "MSFT", got[0].Metadata.Ticker)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
}

func TestDimensionChecks(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	assert.Error(t, s.Init(ctx, 0))
	require.NoError(t, s.Init(ctx, 3))
	assert.Error(t, s.Upsert(ctx, []domain.VectorRecord{record("x", "AAPL", 2023, 1, 0)}))
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{record("y", "AAPL", 2023, 1, 0, 0)}))
	_, err := s.Query(ctx, []float32{1}, 1, nil)
	assert.Error(t, err)
}

func TestQueryEmptyStore(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	got, err := s.Query(ctx, []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Init(ctx, 2))
	got, err = s.Query(ctx, []float32{1, 0, 0}, 5, domain.Filter{domain.FieldTicker: "AAPL"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{record("x", "AAPL", 2023, 1, 0)}))
	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Len())
}
