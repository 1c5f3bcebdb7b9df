package index_test

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-query-pipeline/pkg/embedding"
	"github.com/askiada/go-query-pipeline/pkg/index"
	"github.com/askiada/go-query-pipeline/pkg/nodeparser"
	"github.com/askiada/go-query-pipeline/pkg/schema"
	"github.com/askiada/go-query-pipeline/pkg/stream/drawer"
	"github.com/askiada/go-query-pipeline/pkg/stream/measure"
	"github.com/askiada/go-query-pipeline/pkg/vectorstore"
)

type failingEmbedder struct {
	embedding.Embedder
}

func (failingEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, assert.AnError
}

// flakyEmbedder fails from the call number failAt.
type flakyEmbedder struct {
	embedding.Embedder
	calls  atomic.Int64
	failAt int64
}

func (f *flakyEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if f.calls.Add(1) >= f.failAt {
		return nil, assert.AnError
	}

	return f.Embedder.EmbedDocuments(ctx, texts)
}

// fixedParser returns the same nodes for every document.
type fixedParser []*schema.Node

func (p fixedParser) Parse(_ context.Context, doc *schema.Document) ([]*schema.Node, error) {
	nodes := make([]*schema.Node, 0, len(p))
	for _, node := range p {
		clone := *node
		clone.ID = doc.ID + "-" + node.ID
		clone.RefDocID = doc.ID
		nodes = append(nodes, &clone)
	}

	return nodes, nil
}

func docs() []*schema.Document {
	return []*schema.Document{
		schema.NewDocument("Go is a programming language. It has goroutines.", map[string]any{"file": "go.txt"}),
		schema.NewDocument("Cats sleep a lot. Cats purr when happy.", map[string]any{"file": "cats.txt"}),
	}
}

func splitter(t *testing.T) nodeparser.Parser {
	t.Helper()

	parser, err := nodeparser.NewSentenceSplitter(nodeparser.WithChunkSize(6), nodeparser.WithChunkOverlap(0))
	require.NoError(t, err)

	return parser
}

func TestFromDocuments(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		concurrent int
		batch      int
	}{
		"sequential":         {concurrent: 1, batch: 1},
		"concurrent batch":   {concurrent: 3, batch: 2},
		"default batch size": {concurrent: 2},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := vectorstore.NewMemoryStore()
			idx, err := index.FromDocuments(t.Context(), docs(), store, embedding.NewHashEmbedder(512),
				index.WithParser(splitter(t)),
				index.WithEmbedConcurrency(tc.concurrent),
				index.WithBatchSize(tc.batch),
			)
			require.NoError(t, err)
			assert.Equal(t, 4, store.Len())

			nodes, err := idx.AsRetriever(1).Retrieve(t.Context(), schema.QueryBundle{QueryStr: "cats purr when happy"})
			require.NoError(t, err)
			assert.Equal(t, []string{"Cats purr when happy."}, nodes.Texts())
			assert.Equal(t, "cats.txt", nodes[0].Node.Metadata["file"])
		})
	}
}

func TestInsertAndDelete(t *testing.T) {
	t.Parallel()

	store := vectorstore.NewMemoryStore()
	idx, err := index.New(store, embedding.NewHashEmbedder(64), index.WithParser(splitter(t)))
	require.NoError(t, err)

	doc := schema.NewDocument("One sentence only.", nil)
	count, err := idx.Insert(t.Context(), doc)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, store.Len())

	require.NoError(t, idx.Delete(t.Context(), doc.ID))
	assert.Equal(t, 0, store.Len())
}

func TestInsertEmbedError(t *testing.T) {
	t.Parallel()

	idx, err := index.New(vectorstore.NewMemoryStore(), failingEmbedder{})
	require.NoError(t, err)

	_, err = idx.InsertDocuments(t.Context(), docs())
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "embed")
}

func TestInsertFailureStoresNothing(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		concurrent int
	}{
		"sequential": {concurrent: 1},
		"concurrent": {concurrent: 3},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := vectorstore.NewMemoryStore()
			emb := &flakyEmbedder{Embedder: embedding.NewHashEmbedder(16), failAt: 3}

			idx, err := index.New(store, emb, index.WithParser(splitter(t)), index.WithEmbedConcurrency(tc.concurrent))
			require.NoError(t, err)

			_, err = idx.InsertDocuments(t.Context(), docs())
			require.ErrorIs(t, err, assert.AnError)
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestInsertNodeRouting(t *testing.T) {
	t.Parallel()

	msr := measure.NewDefaultMeasure()
	store := vectorstore.NewMemoryStore()

	parser := fixedParser{
		{ID: "a", Text: "already embedded", Embedding: []float32{1, 0}},
		{ID: "b", Text: "   "},
		{ID: "c", Text: "needs a vector"},
	}

	idx, err := index.New(store, embedding.NewHashEmbedder(2),
		index.WithParser(parser),
		index.WithPipelineOptions(measure.PipelineMeasure(msr)),
	)
	require.NoError(t, err)

	total, err := idx.InsertDocuments(t.Context(), docs())
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, 4, store.Len())
	assert.Equal(t, int64(2), msr.GetMetric("embed").Count())
	assert.Equal(t, int64(4), msr.GetMetric("store").Count())
}

func TestInsertEmbeddedNodesSkipEmbedder(t *testing.T) {
	t.Parallel()

	store := vectorstore.NewMemoryStore()

	idx, err := index.New(store, failingEmbedder{},
		index.WithParser(fixedParser{{ID: "a", Text: "already embedded", Embedding: []float32{0, 1}}}),
	)
	require.NoError(t, err)

	total, err := idx.InsertDocuments(t.Context(), docs())
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, store.Len())
}

func TestNewErrors(t *testing.T) {
	t.Parallel()

	_, err := index.New(nil, embedding.NewHashEmbedder(8))
	require.ErrorIs(t, err, index.ErrStoreMustBeSet)

	_, err = index.New(vectorstore.NewMemoryStore(), nil)
	require.ErrorIs(t, err, index.ErrEmbedderMustBeSet)
}

func TestIngestionDrawing(t *testing.T) {
	t.Parallel()

	msr := measure.NewDefaultMeasure()
	buf := &bytes.Buffer{}

	_, err := index.FromDocuments(t.Context(), docs(), vectorstore.NewMemoryStore(), embedding.NewHashEmbedder(32),
		index.WithParser(splitter(t)),
		index.WithPipelineOptions(measure.PipelineMeasure(msr), drawer.PipelineDrawer(drawer.NewDOTDrawer(buf), msr)),
	)
	require.NoError(t, err)

	assert.Equal(t, int64(4), msr.GetMetric("embed").Count())
	assert.Contains(t, buf.String(), `"documents" -> "parse"`)
	assert.Contains(t, buf.String(), `"parse" -> "filter"`)
	assert.Contains(t, buf.String(), `"embed" -> "merge"`)
	assert.Contains(t, buf.String(), `"merge" -> "store"`)
}
