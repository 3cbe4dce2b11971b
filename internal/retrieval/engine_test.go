package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secrag/internal/domain"
	"secrag/internal/embedding"
	"secrag/internal/embedding/hashing"
	"secrag/internal/metrics"
	"secrag/internal/vectorstore/memory"
)

type fakeEmbedder struct{ err error }

func (fakeEmbedder) Name() string   { return "fake" }
func (fakeEmbedder) Dimension() int { return 2 }
func (fakeEmbedder) MaxBatch() int  { return 0 }

func (f fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

// fakeStore returns canned matches and records the request.
type fakeStore struct {
	matches []domain.Match
	err     error
	gotK    int
	gotF    domain.Filter
}

func (s *fakeStore) Init(context.Context, int) error { return nil }
func (s *fakeStore) Upsert(context.Context, []domain.VectorRecord) error { return nil }
func (s *fakeStore) Clear(context.Context) error { return nil }
func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) Query(_ context.Context, _ []float32, topK int, f domain.Filter) ([]domain.Match, error) {
	s.gotK, s.gotF = topK, f
	if s.err != nil {
		return nil, s.err
	}
	if len(s.matches) > topK {
		return s.matches[:topK], nil
	}
	return s.matches, nil
}

func candidates(labels ...string) []domain.Match {
	out := make([]domain.Match, len(labels))
	for i, l := range labels {
		out[i] = domain.Match{
			ID:       fmt.Sprintf("c%d", i),
			Score:    1 - float64(i)/100,
			Metadata: domain.ChunkMetadata{Ticker: "AAPL", ItemLabel: l},
		}
	}
	return out
}

func ids(rs []domain.SearchResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ChunkID
	}
	return out
}

func TestSearchPushdownOnly(t *testing.T) {
	store := &fakeStore{matches: candidates("a", "b", "c", "d")}
	e := NewEngine(fakeEmbedder{}, store, 0, zerolog.Nop(), nil)

	got, err := e.Search(context.Background(), "q", 3, domain.Filters{Ticker: "AAPL", FiscalYear: 2024})
	require.NoError(t, err)
	assert.Equal(t, 3, store.gotK)
	assert.Equal(t, domain.Filter{domain.FieldTicker: "AAPL", domain.FieldFiscalYear: 2024}, store.gotF)
	assert.Equal(t, []string{"c0", "c1", "c2"}, ids(got))
}

func TestSearchPostFilterUnderFills(t *testing.T) {
	// 10 candidates for top 5, only 3 of them Risk Factors.
	store := &fakeStore{matches: candidates(
		"Item 1 - Business", "Item 1A - Risk Factors", "Item 7 - MD&A", "Item 1A - Risk Factors",
		"Item 2 - Properties", "Item 3 - Legal Proceedings", "Item 1A - Risk Factors",
		"Item 8 - Financial Statements", "Item 9 - Other", "Item 10 - Directors",
	)}
	m := metrics.New()
	e := NewEngine(fakeEmbedder{}, store, 0, zerolog.Nop(), m)

	got, err := e.Search(context.Background(), "q", 5, domain.Filters{ItemLabel: "risk factors"})
	require.NoError(t, err)
	assert.Equal(t, 10, store.gotK)
	assert.Empty(t, store.gotF)
	assert.Equal(t, []string{"c1", "c3", "c6"}, ids(got))
}

func TestSearchPostFilterTruncates(t *testing.T) {
	store := &fakeStore{matches: candidates("Risk", "Risk", "Other", "Risk", "Risk")}
	e := NewEngine(fakeEmbedder{}, store, 0, zerolog.Nop(), nil)

	got, err := e.Search(context.Background(), "q", 2, domain.Filters{ItemLabel: "risk"})
	require.NoError(t, err)
	assert.Equal(t, 4, store.gotK)
	assert.Equal(t, []string{"c0", "c1"}, ids(got))
}

func TestSearchDefaultTopK(t *testing.T) {
	store := &fakeStore{}
	e := NewEngine(fakeEmbedder{}, store, 0, zerolog.Nop(), nil)
	_, err := e.Search(context.Background(), "q", 0, domain.Filters{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, store.gotK)
}

func TestSearchFailsClosed(t *testing.T) {
	store := &fakeStore{matches: candidates("a")}
	e := NewEngine(fakeEmbedder{err: errors.New("service down")}, store, 0, zerolog.Nop(), nil)

	got, err := e.Search(context.Background(), "q", 3, domain.Filters{})
	require.Error(t, err)
	assert.Nil(t, got)
	assert.Zero(t, store.gotK, "index must not be queried")

	e = NewEngine(fakeEmbedder{}, &fakeStore{err: errors.New("index down")}, 0, zerolog.Nop(), nil)
	_, err = e.Search(context.Background(), "q", 3, domain.Filters{})
	assert.ErrorContains(t, err, "index down")
}

func TestSearchEmptyIndex(t *testing.T) {
	e := NewEngine(hashing.NewEmbedder(0), memory.NewStorage(), 5, zerolog.Nop(), nil)
	got, err := e.Search(context.Background(), "revenue", 5, domain.Filters{Ticker: "AAPL", ItemLabel: "risk"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchRejectsQueryWithoutTerms(t *testing.T) {
	ctx := context.Background()
	emb := hashing.NewEmbedder(16)
	store := memory.NewStorage()
	require.NoError(t, store.Init(ctx, emb.Dimension()))
	require.NoError(t, store.Upsert(ctx, []domain.VectorRecord{{
		ID: "a", Values: emb.Embed("revenue grew"), Metadata: domain.ChunkMetadata{Ticker: "AAPL"},
	}}))

	got, err := NewEngine(emb, store, 5, zerolog.Nop(), nil).Search(ctx, "the and of", 5, domain.Filters{})
	assert.ErrorIs(t, err, embedding.ErrEmptyEmbedding)
	assert.Nil(t, got)
}

func TestSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	emb := hashing.NewEmbedder(128)
	store := memory.NewStorage()
	require.NoError(t, store.Init(ctx, emb.Dimension()))

	texts := map[string]string{
		"AAPL_10K_2024-11-01-chunk-0000": "iPhone revenue grew in every geographic segment.",
		"AAPL_10K_2024-11-01-chunk-0001": "Supply chain concentration in Asia is a key risk.",
		"MSFT_10K_2024-07-30-chunk-0000": "Azure consumption drove cloud revenue growth.",
	}
	for id, text := range texts {
		ticker := id[:4]
		require.NoError(t, store.Upsert(ctx, []domain.VectorRecord{{
			ID:       id,
			Values:   emb.Embed(text),
			Metadata: domain.ChunkMetadata{Ticker: ticker, FormType: "10K", ItemLabel: "Item 1A - Risk Factors", Text: text, FiscalYear: 2024},
		}}))
	}

	e := NewEngine(emb, store, 5, zerolog.Nop(), nil)
	got, err := e.Search(ctx, texts["AAPL_10K_2024-11-01-chunk-0001"], 5, domain.Filters{Ticker: "AAPL", ItemLabel: "risk"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL_10K_2024-11-01-chunk-0001", got[0].ChunkID)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.Equal(t, 2024, got[0].Fiscal.FiscalYear)
	assert.Equal(t, texts["AAPL_10K_2024-11-01-chunk-0001"], got[0].Text)
}
