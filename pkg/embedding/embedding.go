// Package embedding turns text into vectors.
package embedding

import (
	"context"
	"math"

	"github.com/pkg/errors"
)

var (
	ErrDimensionMismatch = errors.New("vectors have different dimensions")
	ErrInvalidDimension  = errors.New("embedding dimension must be positive")
)

// Embedder embeds documents and queries.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CosineSimilarity returns the cosine of the angle between a and b. Zero vectors have similarity 0.
func CosineSimilarity(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, errors.Wrapf(ErrDimensionMismatch, "%d != %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB))), nil
}
