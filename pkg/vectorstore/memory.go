package vectorstore

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/pkg/errors"

	"github.com/askiada/go-query-pipeline/pkg/embedding"
	"github.com/askiada/go-query-pipeline/pkg/schema"
)

// MemoryStore ranks nodes by brute force cosine similarity.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]*schema.Node
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nodes: make(map[string]*schema.Node)}
}

// Add stores nodes, replacing nodes with the same id.
func (m *MemoryStore) Add(_ context.Context, nodes []*schema.Node) ([]string, error) {
	for _, node := range nodes {
		if len(node.Embedding) == 0 {
			return nil, errors.Wrapf(ErrMissingEmbedding, "node %s", node.ID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, len(nodes))
	for i, node := range nodes {
		m.nodes[node.ID] = node
		ids[i] = node.ID
	}

	return ids, nil
}

func (m *MemoryStore) Query(ctx context.Context, query Query) (*Result, error) {
	err := ValidateQuery(query)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	scored := make(schema.NodesWithScore, 0, len(m.nodes))
	for _, node := range m.nodes {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !MatchFilters(node.Metadata, query.Filters) {
			continue
		}

		score, err := embedding.CosineSimilarity(query.Embedding, node.Embedding)
		if err != nil {
			return nil, errors.Wrapf(err, "node %s", node.ID)
		}
		scored = append(scored, schema.NodeWithScore{Node: node, Score: score})
	}

	Rank(scored)
	if len(scored) > query.TopK {
		scored = scored[:query.TopK]
	}

	return &Result{Nodes: scored}, nil
}

func (m *MemoryStore) Delete(_ context.Context, refDocID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, node := range m.nodes {
		if node.RefDocID == refDocID {
			delete(m.nodes, id)
		}
	}

	return nil
}

// Len returns the number of stored nodes.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.nodes)
}

// Rank sorts nodes by decreasing score, ties broken by id.
func Rank(nodes schema.NodesWithScore) {
	slices.SortFunc(nodes, func(a, b schema.NodeWithScore) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}

		return cmp.Compare(a.Node.ID, b.Node.ID)
	})
}

var _ VectorStore = (*MemoryStore)(nil)
