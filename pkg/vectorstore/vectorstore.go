// Package vectorstore stores embedded nodes and ranks them by similarity to a query.
package vectorstore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/askiada/go-query-pipeline/pkg/schema"
)

var (
	ErrMissingEmbedding = errors.New("node has no embedding")
	ErrInvalidTopK      = errors.New("top k must be positive")
)

// Query selects the TopK nodes closest to Embedding among the nodes matching every filter.
type Query struct {
	Embedding []float32
	TopK      int
	// Filters are exact matches on node metadata. Values are compared as strings.
	Filters map[string]any
}

// Result is the ranked answer to a [Query].
type Result struct {
	Nodes schema.NodesWithScore
}

// VectorStore persists embedded nodes.
type VectorStore interface {
	Add(ctx context.Context, nodes []*schema.Node) ([]string, error)
	Query(ctx context.Context, query Query) (*Result, error)
	// Delete removes every node parsed from the document refDocID.
	Delete(ctx context.Context, refDocID string) error
}

// MatchFilters reports whether metadata holds every filter value.
func MatchFilters(metadata map[string]any, filters map[string]any) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok {
			return false
		}

		wantStr, err := cast.ToStringE(want)
		if err != nil {
			return false
		}
		gotStr, err := cast.ToStringE(got)
		if err != nil {
			return false
		}

		if wantStr != gotStr {
			return false
		}
	}

	return true
}

// ValidateQuery checks the top k and the query embedding.
func ValidateQuery(query Query) error {
	if query.TopK <= 0 {
		return errors.Wrapf(ErrInvalidTopK, "got %d", query.TopK)
	}
	if len(query.Embedding) == 0 {
		return errors.Wrap(ErrMissingEmbedding, "query")
	}

	return nil
}
