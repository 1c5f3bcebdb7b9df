// Package index builds a vector index from documents on the stream engine.
package index

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/yaoapp/kun/log"

	"github.com/askiada/go-query-pipeline/pkg/embedding"
	"github.com/askiada/go-query-pipeline/pkg/nodeparser"
	"github.com/askiada/go-query-pipeline/pkg/retriever"
	"github.com/askiada/go-query-pipeline/pkg/schema"
	"github.com/askiada/go-query-pipeline/pkg/stream"
	"github.com/askiada/go-query-pipeline/pkg/stream/model"
	"github.com/askiada/go-query-pipeline/pkg/vectorstore"
)

const DefaultBatchSize = 32

var (
	ErrStoreMustBeSet    = errors.New("vector store must be set")
	ErrEmbedderMustBeSet = errors.New("embedder must be set")
)

// VectorIndex parses, embeds and stores documents.
type VectorIndex struct {
	store            vectorstore.VectorStore
	embedder         embedding.Embedder
	parser           nodeparser.Parser
	embedConcurrency int
	batchSize        int
	pipelineOpts     []model.PipelineOption
}

// Option configures a [VectorIndex].
type Option func(*VectorIndex)

// WithParser replaces the default sentence splitter.
func WithParser(parser nodeparser.Parser) Option {
	return func(v *VectorIndex) {
		v.parser = parser
	}
}

// WithEmbedConcurrency sets the number of goroutines embedding nodes.
func WithEmbedConcurrency(concurrent int) Option {
	return func(v *VectorIndex) {
		v.embedConcurrency = concurrent
	}
}

// WithBatchSize sets the number of nodes written to the store at once.
func WithBatchSize(size int) Option {
	return func(v *VectorIndex) {
		v.batchSize = size
	}
}

// WithPipelineOptions adds options, like measure or drawer, to every ingestion pipeline.
func WithPipelineOptions(opts ...model.PipelineOption) Option {
	return func(v *VectorIndex) {
		v.pipelineOpts = append(v.pipelineOpts, opts...)
	}
}

// New creates an empty index over store.
func New(store vectorstore.VectorStore, embedder embedding.Embedder, opts ...Option) (*VectorIndex, error) {
	if store == nil {
		return nil, ErrStoreMustBeSet
	}
	if embedder == nil {
		return nil, ErrEmbedderMustBeSet
	}

	v := &VectorIndex{
		store:            store,
		embedder:         embedder,
		embedConcurrency: 1,
		batchSize:        DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(v)
	}

	if v.parser == nil {
		parser, err := nodeparser.NewSentenceSplitter()
		if err != nil {
			return nil, errors.Wrap(err, "unable to create default parser")
		}
		v.parser = parser
	}
	if v.batchSize <= 0 {
		v.batchSize = DefaultBatchSize
	}

	return v, nil
}

// FromDocuments creates an index and inserts docs.
func FromDocuments(ctx context.Context, docs []*schema.Document, store vectorstore.VectorStore, embedder embedding.Embedder, opts ...Option) (*VectorIndex, error) {
	v, err := New(store, embedder, opts...)
	if err != nil {
		return nil, err
	}

	_, err = v.InsertDocuments(ctx, docs)
	if err != nil {
		return nil, err
	}

	return v, nil
}

// Store returns the underlying vector store.
func (v *VectorIndex) Store() vectorstore.VectorStore {
	return v.store
}

func (v *VectorIndex) embed(ctx context.Context, node *schema.Node) (*schema.Node, error) {
	vecs, err := v.embedder.EmbedDocuments(ctx, []string{node.Text})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to embed node %s", node.ID)
	}
	if len(vecs) != 1 {
		return nil, errors.Errorf("embedder returned %d vectors for 1 text", len(vecs))
	}
	node.Embedding = vecs[0]

	return node, nil
}

// keepNode drops the nodes without any text.
func keepNode(_ context.Context, node *schema.Node) (*schema.Node, bool, error) {
	return node, strings.TrimSpace(node.Text) != "", nil
}

func (v *VectorIndex) write(ctx context.Context, input <-chan *schema.Node, total *atomic.Int64) error {
	batch := make([]*schema.Node, 0, v.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		_, err := v.store.Add(ctx, batch)
		if err != nil {
			return errors.Wrap(err, "unable to add nodes to store")
		}
		total.Add(int64(len(batch)))
		batch = make([]*schema.Node, 0, v.batchSize)

		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case node, ok := <-input:
			if !ok {
				// a failed run closes the input too
				if err := ctx.Err(); err != nil {
					return err
				}

				return flush()
			}

			batch = append(batch, node)
			if len(batch) >= v.batchSize {
				err := flush()
				if err != nil {
					return err
				}
			}
		}
	}
}

// InsertDocuments runs the ingestion pipeline over docs and returns the number of nodes stored.
// Empty nodes are dropped and nodes already holding an embedding are stored as is.
// Nothing is written to the store when any step fails.
func (v *VectorIndex) InsertDocuments(ctx context.Context, docs []*schema.Document) (int, error) {
	pipe, err := stream.New(v.pipelineOpts...)
	if err != nil {
		return 0, errors.Wrap(err, "unable to create ingestion pipeline")
	}

	root, err := stream.AddRootSlice(pipe, "documents", docs)
	if err != nil {
		return 0, err
	}

	parsed, err := stream.AddStepOneToMany(pipe, "parse", root, v.parser.Parse)
	if err != nil {
		return 0, err
	}

	nodes, err := stream.AddStepOneToOneOrZero(pipe, "filter", parsed, keepNode)
	if err != nil {
		return 0, err
	}

	// nodes carrying an embedding skip the embedder
	route, err := stream.AddSplitterFn(pipe, "route", nodes, []stream.SplitterFn[*schema.Node]{
		func(node *schema.Node) (bool, error) { return len(node.Embedding) > 0, nil },
		func(node *schema.Node) (bool, error) { return len(node.Embedding) == 0, nil },
	}, stream.SplitterBufferSize[*schema.Node](v.embedConcurrency))
	if err != nil {
		return 0, err
	}

	ready, _ := route.Get()
	pending, _ := route.Get()

	embedded, err := stream.AddStepOneToOne(pipe, "embed", pending, v.embed,
		stream.StepConcurrency(v.embedConcurrency), stream.StepBufferSize(v.batchSize))
	if err != nil {
		return 0, err
	}

	merged, err := stream.AddMerger(pipe, "merge", ready, embedded)
	if err != nil {
		return 0, err
	}

	total := &atomic.Int64{}
	err = stream.AddSinkFromChan(pipe, "store", merged, func(ctx context.Context, input <-chan *schema.Node) error {
		return v.write(ctx, input, total)
	})
	if err != nil {
		return 0, err
	}

	err = pipe.Run(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "unable to ingest documents")
	}

	log.With(log.F{"documents": len(docs), "nodes": total.Load()}).Debug("documents indexed")

	return int(total.Load()), nil
}

// Insert indexes a single document.
func (v *VectorIndex) Insert(ctx context.Context, doc *schema.Document) (int, error) {
	return v.InsertDocuments(ctx, []*schema.Document{doc})
}

// Delete removes every node of the document refDocID.
func (v *VectorIndex) Delete(ctx context.Context, refDocID string) error {
	err := v.store.Delete(ctx, refDocID)
	if err != nil {
		return errors.Wrapf(err, "unable to delete document %s", refDocID)
	}

	return nil
}

// AsRetriever returns a retriever over the index. topK <= 0 uses [retriever.DefaultTopK].
func (v *VectorIndex) AsRetriever(topK int, opts ...retriever.Option) *retriever.VectorRetriever {
	if topK > 0 {
		opts = append([]retriever.Option{retriever.WithTopK(topK)}, opts...)
	}

	return retriever.NewVectorRetriever(v.store, v.embedder, opts...)
}
