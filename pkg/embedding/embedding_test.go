package embedding_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-query-pipeline/pkg/embedding"
)

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		a, b []float32
		want float32
	}{
		"same":       {a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		"opposite":   {a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		"orthogonal": {a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		"zero":       {a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := embedding.CosineSimilarity(tc.a, tc.b)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-6)
		})
	}
}

func TestCosineSimilarityMismatch(t *testing.T) {
	t.Parallel()

	_, err := embedding.CosineSimilarity([]float32{1}, []float32{1, 2})
	require.ErrorIs(t, err, embedding.ErrDimensionMismatch)
}

func TestHashEmbedder(t *testing.T) {
	t.Parallel()

	emb := embedding.NewHashEmbedder(256)

	vecs, err := emb.EmbedDocuments(t.Context(), []string{"The cat sat", "the CAT sat!", "quantum chromodynamics"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, vecs[0], 256)
	assert.Equal(t, vecs[0], vecs[1])

	query, err := emb.EmbedQuery(t.Context(), "cat")
	require.NoError(t, err)

	near, err := embedding.CosineSimilarity(query, vecs[0])
	require.NoError(t, err)
	far, err := embedding.CosineSimilarity(query, vecs[2])
	require.NoError(t, err)
	assert.Greater(t, near, far)

	empty, err := emb.EmbedQuery(t.Context(), "   ")
	require.NoError(t, err)
	assert.Len(t, empty, 256)
}

func TestHashEmbedderDefaultDim(t *testing.T) {
	t.Parallel()

	assert.Equal(t, embedding.DefaultDim, embedding.NewHashEmbedder(0).Dim)

	_, err := (&embedding.HashEmbedder{}).EmbedQuery(t.Context(), "x")
	require.ErrorIs(t, err, embedding.ErrInvalidDimension)
}
