package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secrag/internal/domain"
)

func TestPointIDStable(t *testing.T) {
	a := PointID("AAPL_10K_2024-11-01-chunk-0000")
	assert.Equal(t, a, PointID("AAPL_10K_2024-11-01-chunk-0000"))
	assert.NotEqual(t, a, PointID("AAPL_10K_2024-11-01-chunk-0001"))
	assert.Len(t, a, 36)
}

func TestBuildFilter(t *testing.T) {
	assert.Nil(t, buildFilter(nil))

	got := buildFilter(domain.Filter{domain.FieldTicker: "AAPL", domain.FieldFiscalYear: 2024})
	want := map[string]any{"must": []map[string]any{
		{"key": "fiscal_year", "match": map[string]any{"value": 2024}},
		{"key": "ticker", "match": map[string]any{"value": "AAPL"}},
	}}
	assert.Equal(t, want, got)
}

func TestInitCreatesMissingCollection(t *testing.T) {
	var created map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/filings", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&created))
			_, _ = w.Write([]byte(`{"result":true}`))
		}
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "filings"})
	require.NoError(t, s.Init(context.Background(), 8))
	require.NotNil(t, created)
	vectors := created["vectors"].(map[string]any)
	assert.Equal(t, float64(8), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestUpsertAndQuery(t *testing.T) {
	var upserted struct {
		Points []struct {
			ID      string         `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	var search map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/collections/sec_filings/points":
			assert.Equal(t, "true", r.URL.Query().Get("wait"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&upserted))
			_, _ = w.Write([]byte(`{"result":{}}`))
		case "/collections/sec_filings/points/search":
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&search))
			_, _ = w.Write([]byte(`{"result":[{"id":"` + PointID("c1") + `","score":0.87,
				"payload":{"chunk_id":"c1","ticker":"AAPL","fiscal_year":2024,"item_id":"Item 7 - MD&A","text":"t"}}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	s := NewStorage(Config{URL: srv.URL})
	require.NoError(t, s.Upsert(ctx, []domain.VectorRecord{{
		ID:       "c1",
		Values:   []float32{1, 0},
		Metadata: domain.ChunkMetadata{Ticker: "AAPL", FiscalYear: 2024},
	}}))
	require.Len(t, upserted.Points, 1)
	assert.Equal(t, PointID("c1"), upserted.Points[0].ID)
	assert.Equal(t, "c1", upserted.Points[0].Payload["chunk_id"])

	got, err := s.Query(ctx, []float32{1, 0}, 3, domain.Filter{domain.FieldTicker: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, float64(3), search["limit"])
	assert.Contains(t, search, "filter")
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ID)
	assert.InDelta(t, 0.87, got[0].Score, 1e-9)
	assert.Equal(t, 2024, got[0].Metadata.FiscalYear)
	assert.Equal(t, "Item 7 - MD&A", got[0].Metadata.ItemLabel)
}

func TestErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewStorage(Config{URL: srv.URL}).Query(context.Background(), []float32{1}, 1, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
