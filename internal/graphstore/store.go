// Package graphstore provides the in-memory vertex and edge store backing the query pipeline DAG.
package graphstore

import (
	"cmp"
	"slices"
	"sync"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
)

// Store is a [graph.Store] that also answers degree queries without copying adjacency maps.
type Store[K cmp.Ordered, T any] interface {
	graph.Store[K, T]
	// Roots returns the vertices without incoming edges, sorted.
	Roots() []K
	// Leaves returns the vertices without outgoing edges, sorted.
	Leaves() []K
	// Parents returns the sources of the edges ending at k, sorted.
	Parents(k K) []K
	// Children returns the targets of the edges starting at k, sorted.
	Children(k K) []K
}

// MemoryStore keeps modules and links in maps guarded by a single lock.
type MemoryStore[K cmp.Ordered, T any] struct {
	lock       sync.RWMutex
	vertices   map[K]T
	properties map[K]*graph.VertexProperties

	// outEdges and inEdges are keyed by the hash of the vertex on the other end.
	outEdges map[K]map[K]graph.Edge[K] // source -> target
	inEdges  map[K]map[K]graph.Edge[K] // target -> source
}

// New creates an empty store.
func New[K cmp.Ordered, T any]() *MemoryStore[K, T] {
	return &MemoryStore[K, T]{
		vertices:   make(map[K]T),
		properties: make(map[K]*graph.VertexProperties),
		outEdges:   make(map[K]map[K]graph.Edge[K]),
		inEdges:    make(map[K]map[K]graph.Edge[K]),
	}
}

func (s *MemoryStore[K, T]) AddVertex(k K, t T, p graph.VertexProperties) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.vertices[k]; ok {
		return graph.ErrVertexAlreadyExists
	}

	s.vertices[k] = t
	s.properties[k] = &p

	return nil
}

func (s *MemoryStore[K, T]) ListVertices() ([]K, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return sortedKeys(s.vertices), nil
}

func (s *MemoryStore[K, T]) VertexCount() (int, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.vertices), nil
}

func (s *MemoryStore[K, T]) Vertex(k K) (T, graph.VertexProperties, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	v, ok := s.vertices[k]
	if !ok {
		return v, graph.VertexProperties{}, graph.ErrVertexNotFound
	}

	return v, *s.properties[k], nil
}

func (s *MemoryStore[K, T]) RemoveVertex(k K) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.vertices[k]; !ok {
		return graph.ErrVertexNotFound
	}

	if len(s.inEdges[k]) > 0 || len(s.outEdges[k]) > 0 {
		return graph.ErrVertexHasEdges
	}

	delete(s.inEdges, k)
	delete(s.outEdges, k)
	delete(s.vertices, k)
	delete(s.properties, k)

	return nil
}

func (s *MemoryStore[K, T]) AddEdge(sourceHash, targetHash K, edge graph.Edge[K]) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.outEdges[sourceHash]; !ok {
		s.outEdges[sourceHash] = make(map[K]graph.Edge[K])
	}
	s.outEdges[sourceHash][targetHash] = edge

	if _, ok := s.inEdges[targetHash]; !ok {
		s.inEdges[targetHash] = make(map[K]graph.Edge[K])
	}
	s.inEdges[targetHash][sourceHash] = edge

	return nil
}

func (s *MemoryStore[K, T]) UpdateEdge(sourceHash, targetHash K, edge graph.Edge[K]) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.outEdges[sourceHash][targetHash]; !ok {
		return graph.ErrEdgeNotFound
	}

	s.outEdges[sourceHash][targetHash] = edge
	s.inEdges[targetHash][sourceHash] = edge

	return nil
}

func (s *MemoryStore[K, T]) RemoveEdge(sourceHash, targetHash K) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.inEdges[targetHash], sourceHash)
	delete(s.outEdges[sourceHash], targetHash)

	return nil
}

func (s *MemoryStore[K, T]) Edge(sourceHash, targetHash K) (graph.Edge[K], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	edge, ok := s.outEdges[sourceHash][targetHash]
	if !ok {
		return graph.Edge[K]{}, graph.ErrEdgeNotFound
	}

	return edge, nil
}

func (s *MemoryStore[K, T]) ListEdges() ([]graph.Edge[K], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	res := make([]graph.Edge[K], 0)
	for _, source := range sortedKeys(s.outEdges) {
		edges := s.outEdges[source]
		for _, target := range sortedKeys(edges) {
			res = append(res, edges[target])
		}
	}

	return res, nil
}

// CreatesCycle is picked up by the graph as a fast path: it walks inEdges from source
// looking for target instead of building a predecessor map.
func (s *MemoryStore[K, T]) CreatesCycle(source, target K) (bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if _, ok := s.vertices[source]; !ok {
		return false, errors.Wrapf(graph.ErrVertexNotFound, "vertex %v", source)
	}
	if _, ok := s.vertices[target]; !ok {
		return false, errors.Wrapf(graph.ErrVertexNotFound, "vertex %v", target)
	}

	if source == target {
		return true, nil
	}

	stack := []K{source}
	visited := make(map[K]struct{})

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := visited[current]; ok {
			continue
		}
		// target is already an ancestor of source
		if current == target {
			return true, nil
		}
		visited[current] = struct{}{}

		for parent := range s.inEdges[current] {
			stack = append(stack, parent)
		}
	}

	return false, nil
}

func (s *MemoryStore[K, T]) Roots() []K {
	s.lock.RLock()
	defer s.lock.RUnlock()

	res := []K{}
	for _, k := range sortedKeys(s.vertices) {
		if len(s.inEdges[k]) == 0 {
			res = append(res, k)
		}
	}

	return res
}

func (s *MemoryStore[K, T]) Leaves() []K {
	s.lock.RLock()
	defer s.lock.RUnlock()

	res := []K{}
	for _, k := range sortedKeys(s.vertices) {
		if len(s.outEdges[k]) == 0 {
			res = append(res, k)
		}
	}

	return res
}

func (s *MemoryStore[K, T]) Parents(k K) []K {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return sortedKeys(s.inEdges[k])
}

func (s *MemoryStore[K, T]) Children(k K) []K {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return sortedKeys(s.outEdges[k])
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}

var _ Store[string, string] = (*MemoryStore[string, string])(nil)
