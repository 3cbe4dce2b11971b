package vectorstore

import (
	"context"
	"math"
	"sort"

	"secrag/internal/domain"
)

// MaxUpsertBatch is the most records sent in one upsert call.
const MaxUpsertBatch = 100

// Storage persists vectors with flattened chunk metadata and supports
// filtered similarity search. Upserting an existing id replaces it.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, records []domain.VectorRecord) error
	// Query returns at most topK matches satisfying every predicate of
	// filter, best first. Scores are cosine similarities.
	Query(ctx context.Context, vector []float32, topK int, filter domain.Filter) ([]domain.Match, error)
	Clear(ctx context.Context) error
	Close() error
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero.
func Cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// RankTopK sorts matches by descending score, ties by id, and truncates to topK.
func RankTopK(matches []domain.Match, topK int) []domain.Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if topK >= 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
