// Package retrieval answers filtered semantic searches over the vector index.
package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"secrag/internal/domain"
	"secrag/internal/embedding"
	"secrag/internal/metrics"
	"secrag/internal/vectorstore"
)

// DefaultTopK is used when a caller asks for zero or fewer results.
const DefaultTopK = 5

// oversample is the candidate multiplier applied when client-side filters
// will drop rows.
const oversample = 2

// Engine embeds queries with the ingestion embedder and ranks index rows.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	embedder embedding.Embedder
	store    vectorstore.Storage
	topK     int
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

func NewEngine(e embedding.Embedder, s vectorstore.Storage, defaultTopK int, log zerolog.Logger, m *metrics.Metrics) *Engine {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Engine{
		embedder: e,
		store:    s,
		topK:     defaultTopK,
		log:      log.With().Str("component", "retrieval").Logger(),
		metrics:  m,
	}
}

// Search returns at most topK results in index rank order. Pushdown filters
// go to the index; the item label filter is applied here over 2×topK
// candidates and the result is never backfilled. Any embedding or index
// error fails the search.
func (e *Engine) Search(ctx context.Context, query string, topK int, f domain.Filters) ([]domain.SearchResult, error) {
	started := time.Now()
	if topK <= 0 {
		topK = e.topK
	}

	vec, err := embedding.EmbedQuery(ctx, e.embedder, query)
	if err != nil {
		e.fail(started, err, "query embedding failed")
		return nil, fmt.Errorf("embed query: %w", err)
	}

	limit := topK
	if f.HasPostFilter() {
		limit = oversample * topK
	}
	matches, err := e.store.Query(ctx, vec, limit, f.Pushdown())
	if err != nil {
		e.fail(started, err, "index query failed")
		return nil, fmt.Errorf("query index: %w", err)
	}

	results := make([]domain.SearchResult, 0, min(topK, len(matches)))
	dropped := 0
	for _, m := range matches {
		if len(results) == topK {
			break
		}
		if !f.Accept(m.Metadata) {
			dropped++
			continue
		}
		results = append(results, domain.ResultFromMatch(m))
	}

	if f.HasPostFilter() && len(results) < topK {
		e.log.Debug().
			Str("item_label", f.ItemLabel).
			Int("candidates", len(matches)).
			Int("kept", len(results)).
			Int("top_k", topK).
			Msg("post-filter under-filled results")
	}
	e.metrics.Search(started, dropped, nil)
	return results, nil
}

func (e *Engine) fail(started time.Time, err error, msg string) {
	e.metrics.Search(started, 0, err)
	e.log.Error().Err(err).Msg(msg)
}
