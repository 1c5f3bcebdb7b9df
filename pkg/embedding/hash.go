package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/minio/highwayhash"
)

const DefaultDim = 256

var tokenKey = []byte("go-query-pipeline/embedding/key!")

// HashEmbedder is a deterministic bag of words embedder using the hashing trick.
// It needs no model and is used offline and in tests.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder creates a hash embedder. A non positive dim falls back to [DefaultDim].
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultDim
	}

	return &HashEmbedder{Dim: dim}
}

func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func (h *HashEmbedder) embed(text string) ([]float32, error) {
	if h.Dim <= 0 {
		return nil, ErrInvalidDimension
	}

	vec := make([]float64, h.Dim)
	for _, tok := range tokens(text) {
		sum := highwayhash.Sum64([]byte(tok), tokenKey)
		bucket := sum % uint64(h.Dim)
		// the top bit picks the sign so collisions tend to cancel out
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	res := make([]float32, h.Dim)
	if norm == 0 {
		return res, nil
	}
	for i, v := range vec {
		res[i] = float32(v / norm)
	}

	return res, nil
}

func (h *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	res := make([][]float32, len(texts))
	for i, text := range texts {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		vec, err := h.embed(text)
		if err != nil {
			return nil, err
		}
		res[i] = vec
	}

	return res, nil
}

func (h *HashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.embed(text)
}

var _ Embedder = (*HashEmbedder)(nil)
