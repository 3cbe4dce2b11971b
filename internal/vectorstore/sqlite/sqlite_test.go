package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secrag/internal/domain"
)

func openStore(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Init(context.Background(), 2))
	return s
}

func rec(id, ticker, item string, v ...float32) domain.VectorRecord {
	rev := 1.5e9
	return domain.VectorRecord{
		ID:     id,
		Values: v,
		Metadata: domain.ChunkMetadata{
			Ticker:        ticker,
			FormType:      "10K",
			FilingDate:    "2024-11-01",
			FiscalYear:    2024,
			ItemLabel:     item,
			ChunkType:     "narrative",
			Text:          "text of " + id,
			TokenCount:    42,
			FilingRevenue: &rev,
		},
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{
		rec("a", "AAPL", "Item 1 - Business", 1, 0),
		rec("b", "AAPL", "Item 7 - MD&A", 0, 1),
		rec("c", "MSFT", "Item 1 - Business", 1, 1),
	}))

	got, err := s.Query(ctx, []float32{1, 0}, 2, domain.Filter{domain.FieldTicker: "AAPL"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.Equal(t, "Item 1 - Business", got[0].Metadata.ItemLabel)
	assert.Equal(t, 42, got[0].Metadata.TokenCount)
	require.NotNil(t, got[0].Metadata.FilingRevenue)
	assert.Equal(t, 1.5e9, *got[0].Metadata.FilingRevenue)

	got, err = s.Query(ctx, []float32{1, 0}, 5, domain.Filter{domain.FieldFiscalYear: 2024, domain.FieldTicker: "MSFT"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)
}

func TestUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{rec("a", "AAPL", "x", 1, 0)}))
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{rec("a", "NVDA", "y", 0, 1)}))

	got, err := s.Query(ctx, []float32{0, 1}, 5, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NVDA", got[0].Metadata.Ticker)
}

func TestInitRejectsDimensionChange(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{rec("a", "AAPL", "x", 1, 0)}))
	assert.Error(t, s.Init(ctx, 3))

	require.NoError(t, s.Clear(ctx))
	assert.NoError(t, s.Init(ctx, 3))
}

func TestUnknownFilterField(t *testing.T) {
	s := openStore(t)
	_, err := s.Query(context.Background(), []float32{1, 0}, 1, domain.Filter{"text": "x"})
	assert.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	v := []float32{0.25, -1, 3.5}
	assert.Equal(t, v, decode(encode(v)))
}
