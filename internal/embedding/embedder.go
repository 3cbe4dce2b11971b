package embedding

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPartialResponse means the service returned fewer vectors than inputs.
	ErrPartialResponse = errors.New("embedding response is incomplete")
	// ErrDimensionMismatch means a vector does not have the configured size.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmptyEmbedding means a vector is all zeros and carries no meaning.
	ErrEmptyEmbedding = errors.New("embedding has zero norm")
)

// Embedder converts free text into vectors of a fixed dimension. The same
// embedder and dimension must be used for ingestion and queries.
type Embedder interface {
	Name() string
	// Dimension is the configured vector size; 0 means it is learnt from
	// the first response.
	Dimension() int
	// MaxBatch is the largest number of texts one EmbedBatch call accepts.
	MaxBatch() int
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedAll embeds texts in order, splitting them into batches no larger
// than the embedder accepts. Any short or malformed response fails the
// whole call, as does an all-zero vector; no vector is ever substituted.
func EmbedAll(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	size := e.MaxBatch()
	if size <= 0 {
		size = len(texts)
	}
	out := make([][]float32, 0, len(texts))
	dim := e.Dimension()
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		vecs, err := e.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%s: embed batch %d-%d: %w", e.Name(), start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%s: got %d vectors for %d texts: %w", e.Name(), len(vecs), end-start, ErrPartialResponse)
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return nil, fmt.Errorf("%s: empty vector for text %d: %w", e.Name(), start+i, ErrPartialResponse)
			}
			if dim == 0 {
				dim = len(v)
			}
			if len(v) != dim {
				return nil, fmt.Errorf("%s: vector %d has %d values, want %d: %w", e.Name(), start+i, len(v), dim, ErrDimensionMismatch)
			}
			if zero(v) {
				return nil, fmt.Errorf("%s: vector %d: %w", e.Name(), start+i, ErrEmptyEmbedding)
			}
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func zero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// EmbedQuery embeds a single query text.
func EmbedQuery(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := EmbedAll(ctx, e, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
