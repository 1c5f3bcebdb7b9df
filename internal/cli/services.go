package cli

import (
	"context"

	"github.com/pkg/errors"

	openaiemb "github.com/askiada/go-query-pipeline/integrations/embeddings/openai"
	openaillm "github.com/askiada/go-query-pipeline/integrations/llms/openai"
	"github.com/askiada/go-query-pipeline/integrations/vectorstores/sqlite"
	"github.com/askiada/go-query-pipeline/internal/config"
	"github.com/askiada/go-query-pipeline/pkg/embedding"
	"github.com/askiada/go-query-pipeline/pkg/llm"
	"github.com/askiada/go-query-pipeline/pkg/query"
	"github.com/askiada/go-query-pipeline/pkg/retriever"
	"github.com/askiada/go-query-pipeline/pkg/vectorstore"
)

// newLLM returns the OpenAI compatible client, or the echoing mock when no endpoint is configured.
func newLLM(cfg config.LLM) (llm.LLM, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return &llm.MockLLM{}, nil
	}

	opts := []openaillm.Option{
		openaillm.WithModel(cfg.Model),
		openaillm.WithTemperature(cfg.Temperature),
		openaillm.WithMaxTokens(cfg.MaxTokens),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openaillm.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openaillm.WithAPIKey(cfg.APIKey))
	}

	model, err := openaillm.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create llm")
	}

	return model, nil
}

func newEmbedder(cfg config.Embedding) (embedding.Embedder, error) {
	switch cfg.Provider {
	case "hash":
		return embedding.NewHashEmbedder(cfg.Dim), nil
	case "openai":
		opts := []openaiemb.Option{
			openaiemb.WithModel(cfg.Model),
			openaiemb.WithDimensions(cfg.Dim),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openaiemb.WithBaseURL(cfg.BaseURL))
		}
		if cfg.APIKey != "" {
			opts = append(opts, openaiemb.WithAPIKey(cfg.APIKey))
		}

		emb, err := openaiemb.New(opts...)
		if err != nil {
			return nil, errors.Wrap(err, "unable to create embedder")
		}

		return emb, nil
	default:
		return nil, errors.Wrapf(ErrUnknownProvider, "%q", cfg.Provider)
	}
}

func openStore(ctx context.Context, cfg config.Store) (*sqlite.SQLiteStore, error) {
	store, err := sqlite.Open(ctx, cfg.Path, sqlite.WithTable(cfg.Table))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open vector store %s", cfg.Path)
	}

	return store, nil
}

func needsRetriever(def *query.Definition) bool {
	for _, module := range def.Modules {
		if module.Type == "retriever" {
			return true
		}
	}

	return false
}

// registry returns a registry wired to the configured services. The returned cleanup closes
// the vector store when one was opened.
func (a *app) registry(ctx context.Context, def *query.Definition) (*query.Registry, func() error, error) {
	model, err := newLLM(a.cfg.LLM)
	if err != nil {
		return nil, nil, err
	}

	opts := []query.RegistryOption{query.WithLLM(model)}
	cleanup := func() error { return nil }

	if needsRetriever(def) {
		emb, err := newEmbedder(a.cfg.Embedding)
		if err != nil {
			return nil, nil, err
		}

		store, err := openStore(ctx, a.cfg.Store)
		if err != nil {
			return nil, nil, err
		}

		cleanup = store.Close
		opts = append(opts, query.WithRetriever(
			retriever.NewVectorRetriever(store, emb, retriever.WithTopK(a.cfg.Store.TopK)),
		))
	}

	return query.NewRegistry(opts...), cleanup, nil
}

// offlineRegistry builds modules without reaching any service, for commands that only
// inspect the pipeline shape.
func offlineRegistry(dim int) *query.Registry {
	return query.NewRegistry(
		query.WithLLM(&llm.MockLLM{}),
		query.WithRetriever(retriever.NewVectorRetriever(vectorstore.NewMemoryStore(), embedding.NewHashEmbedder(dim))),
	)
}
