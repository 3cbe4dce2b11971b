package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns [len(text), batch index] per text and records batch sizes.
type fakeEmbedder struct {
	max     int
	dim     int
	batches []int
	short   bool
	wrong   int
	zero    bool
	err     error
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int { return f.dim }
func (f *fakeEmbedder) MaxBatch() int  { return f.max }

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, len(texts))
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v := []float32{float32(len(t)), float32(len(f.batches))}
		if f.zero {
			v = []float32{0, 0}
		}
		if f.wrong > 0 && len(f.batches) == f.wrong {
			v = append(v, 0)
		}
		out = append(out, v)
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func TestEmbedAllRebatchesInOrder(t *testing.T) {
	f := &fakeEmbedder{max: 2, dim: 2}
	vecs, err := EmbedAll(context.Background(), f, []string{"a", "bb", "ccc", "dddd", "eeeee"})

	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, f.batches)
	require.Len(t, vecs, 5)
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v[0])
	}
	assert.Equal(t, float32(3), vecs[4][1])
}

func TestEmbedAllUnboundedBatch(t *testing.T) {
	f := &fakeEmbedder{}
	_, err := EmbedAll(context.Background(), f, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []int{3}, f.batches)

	vecs, err := EmbedAll(context.Background(), f, nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestEmbedAllFailures(t *testing.T) {
	t.Run("partial", func(t *testing.T) {
		_, err := EmbedAll(context.Background(), &fakeEmbedder{short: true}, []string{"a", "b"})
		assert.ErrorIs(t, err, ErrPartialResponse)
	})
	t.Run("dimension learnt from first vector", func(t *testing.T) {
		_, err := EmbedAll(context.Background(), &fakeEmbedder{max: 1, wrong: 2}, []string{"a", "b"})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
	t.Run("configured dimension", func(t *testing.T) {
		_, err := EmbedAll(context.Background(), &fakeEmbedder{dim: 8}, []string{"a"})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})
	t.Run("service error", func(t *testing.T) {
		boom := errors.New("quota")
		vecs, err := EmbedAll(context.Background(), &fakeEmbedder{err: boom}, []string{"a"})
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, vecs)
	})
	t.Run("zero vector", func(t *testing.T) {
		vecs, err := EmbedAll(context.Background(), &fakeEmbedder{zero: true}, []string{"a"})
		assert.ErrorIs(t, err, ErrEmptyEmbedding)
		assert.Nil(t, vecs)
	})
}

func TestEmbedQuery(t *testing.T) {
	v, err := EmbedQuery(context.Background(), &fakeEmbedder{dim: 2}, "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 1}, v)
}
