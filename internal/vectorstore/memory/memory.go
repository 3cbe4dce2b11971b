package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"secrag/internal/domain"
	"secrag/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]domain.VectorRecord
}

func NewStorage() *Storage {
	return &Storage{records: make(map[string]domain.VectorRecord)}
}

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension && len(s.records) > 0 {
		return fmt.Errorf("store holds %d-dimensional vectors, got %d", s.dimension, dimension)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(_ context.Context, records []domain.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if len(r.Values) != s.dimension {
			return fmt.Errorf("record %s: vector dimension mismatch: %d != %d", r.ID, len(r.Values), s.dimension)
		}
	}
	for _, r := range records {
		r.Values = append([]float32(nil), r.Values...)
		s.records[r.ID] = r
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, vector []float32, topK int, filter domain.Filter) ([]domain.Match, error) {
	if topK <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	// An empty or never initialised store has nothing to rank.
	if s.dimension == 0 || len(s.records) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: %d != %d", len(vector), s.dimension)
	}
	matches := make([]domain.Match, 0, len(s.records))
	for id, r := range s.records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !filter.Matches(r.Metadata) {
			continue
		}
		matches = append(matches, domain.Match{
			ID:       id,
			Score:    vectorstore.Cosine(vector, r.Values),
			Metadata: r.Metadata,
		})
	}
	return vectorstore.RankTopK(matches, topK), nil
}

// Len reports the number of stored records.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Storage) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]domain.VectorRecord)
	return nil
}

func (s *Storage) Close() error { return nil }
