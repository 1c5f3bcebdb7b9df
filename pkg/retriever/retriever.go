// Package retriever fetches the nodes relevant to a query.
package retriever

import (
	"context"

	"github.com/pkg/errors"

	"github.com/askiada/go-query-pipeline/pkg/embedding"
	"github.com/askiada/go-query-pipeline/pkg/schema"
	"github.com/askiada/go-query-pipeline/pkg/vectorstore"
)

const DefaultTopK = 2

var (
	ErrStoreMustBeSet    = errors.New("vector store must be set")
	ErrEmbedderMustBeSet = errors.New("embedder must be set to embed the query")
)

// Retriever returns the nodes relevant to a query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query schema.QueryBundle) (schema.NodesWithScore, error)
}

// Func adapts a function to [Retriever].
type Func func(ctx context.Context, query schema.QueryBundle) (schema.NodesWithScore, error)

func (f Func) Retrieve(ctx context.Context, query schema.QueryBundle) (schema.NodesWithScore, error) {
	return f(ctx, query)
}

// VectorRetriever embeds the query and asks the store for the closest nodes.
type VectorRetriever struct {
	Store    vectorstore.VectorStore
	Embedder embedding.Embedder
	TopK     int
	Filters  map[string]any
}

// Option configures a [VectorRetriever].
type Option func(*VectorRetriever)

// WithTopK sets the number of nodes returned.
func WithTopK(topK int) Option {
	return func(r *VectorRetriever) {
		r.TopK = topK
	}
}

// WithFilters restricts the search to nodes whose metadata matches filters.
func WithFilters(filters map[string]any) Option {
	return func(r *VectorRetriever) {
		r.Filters = filters
	}
}

// NewVectorRetriever creates a retriever returning [DefaultTopK] nodes unless overridden.
func NewVectorRetriever(store vectorstore.VectorStore, embedder embedding.Embedder, opts ...Option) *VectorRetriever {
	r := &VectorRetriever{Store: store, Embedder: embedder, TopK: DefaultTopK}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *VectorRetriever) Retrieve(ctx context.Context, query schema.QueryBundle) (schema.NodesWithScore, error) {
	if r.Store == nil {
		return nil, ErrStoreMustBeSet
	}

	vec := query.Embedding
	if len(vec) == 0 {
		if r.Embedder == nil {
			return nil, ErrEmbedderMustBeSet
		}

		var err error
		vec, err = r.Embedder.EmbedQuery(ctx, query.QueryStr)
		if err != nil {
			return nil, errors.Wrap(err, "unable to embed query")
		}
	}

	topK := r.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	res, err := r.Store.Query(ctx, vectorstore.Query{Embedding: vec, TopK: topK, Filters: r.Filters})
	if err != nil {
		return nil, errors.Wrap(err, "unable to query vector store")
	}

	return res.Nodes, nil
}

var (
	_ Retriever = (*VectorRetriever)(nil)
	_ Retriever = Func(nil)
)
