// Package store holds the graph storage backing pipeline step graphs.
package store

import (
	"sort"
	"sync"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
)

// StepStore is a graph.Store that can also answer which vertices point at a given vertex.
type StepStore[K comparable, T any] interface {
	graph.Store[K, T]
	// Predecessors returns the sources of all edges ending at k.
	Predecessors(k K) []K
	// EdgesTo returns the edges ending at k.
	EdgesTo(k K) []graph.Edge[K]
}

type vertex[T any] struct {
	value T
	props graph.VertexProperties
}

type link[K comparable] struct {
	source, target K
}

// MemoryStore keeps a step graph in memory. Step graphs are small and mostly read while the pipeline
// runs, so adjacency is kept both ways as plain slices.
type MemoryStore[K comparable, T any] struct {
	mu       sync.RWMutex
	less     func(a, b K) bool
	vertices map[K]vertex[T]
	edges    map[link[K]]graph.Edge[K]
	parents  map[K][]K
	children map[K][]K
}

// NewMemoryStore creates an empty store. less gives a deterministic order to every listing.
func NewMemoryStore[K comparable, T any](less func(a, b K) bool) StepStore[K, T] {
	return &MemoryStore[K, T]{
		less:     less,
		vertices: make(map[K]vertex[T]),
		edges:    make(map[link[K]]graph.Edge[K]),
		parents:  make(map[K][]K),
		children: make(map[K][]K),
	}
}

func (s *MemoryStore[K, T]) AddVertex(k K, t T, p graph.VertexProperties) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vertices[k]; ok {
		return graph.ErrVertexAlreadyExists
	}
	s.vertices[k] = vertex[T]{value: t, props: p}

	return nil
}

func (s *MemoryStore[K, T]) Vertex(k K) (T, graph.VertexProperties, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vertices[k]
	if !ok {
		var zero T

		return zero, graph.VertexProperties{}, graph.ErrVertexNotFound
	}

	return v.value, v.props, nil
}

// RemoveVertex only removes steps without edges.
func (s *MemoryStore[K, T]) RemoveVertex(k K) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vertices[k]; !ok {
		return graph.ErrVertexNotFound
	}
	if len(s.parents[k]) > 0 || len(s.children[k]) > 0 {
		return graph.ErrVertexHasEdges
	}

	delete(s.vertices, k)
	delete(s.parents, k)
	delete(s.children, k)

	return nil
}

func (s *MemoryStore[K, T]) ListVertices() ([]K, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]K, 0, len(s.vertices))
	for k := range s.vertices {
		keys = append(keys, k)
	}
	s.sort(keys)

	return keys, nil
}

func (s *MemoryStore[K, T]) VertexCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.vertices), nil
}

func (s *MemoryStore[K, T]) AddEdge(sourceHash, targetHash K, edge graph.Edge[K]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := link[K]{source: sourceHash, target: targetHash}
	if _, ok := s.edges[key]; !ok {
		s.children[sourceHash] = append(s.children[sourceHash], targetHash)
		s.parents[targetHash] = append(s.parents[targetHash], sourceHash)
	}
	s.edges[key] = edge

	return nil
}

func (s *MemoryStore[K, T]) UpdateEdge(sourceHash, targetHash K, edge graph.Edge[K]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := link[K]{source: sourceHash, target: targetHash}
	if _, ok := s.edges[key]; !ok {
		return graph.ErrEdgeNotFound
	}
	s.edges[key] = edge

	return nil
}

func without[K comparable](keys []K, k K) []K {
	res := keys[:0]
	for _, key := range keys {
		if key != k {
			res = append(res, key)
		}
	}

	return res
}

func (s *MemoryStore[K, T]) RemoveEdge(sourceHash, targetHash K) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := link[K]{source: sourceHash, target: targetHash}
	if _, ok := s.edges[key]; !ok {
		return nil
	}
	delete(s.edges, key)
	s.children[sourceHash] = without(s.children[sourceHash], targetHash)
	s.parents[targetHash] = without(s.parents[targetHash], sourceHash)

	return nil
}

func (s *MemoryStore[K, T]) Edge(sourceHash, targetHash K) (graph.Edge[K], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edge, ok := s.edges[link[K]{source: sourceHash, target: targetHash}]
	if !ok {
		return graph.Edge[K]{}, graph.ErrEdgeNotFound
	}

	return edge, nil
}

// ListEdges returns the edges grouped by target, targets and sources both ordered by less.
func (s *MemoryStore[K, T]) ListEdges() ([]graph.Edge[K], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	targets := make([]K, 0, len(s.parents))
	for target := range s.parents {
		targets = append(targets, target)
	}
	s.sort(targets)

	res := make([]graph.Edge[K], 0, len(s.edges))
	for _, target := range targets {
		res = append(res, s.edgesTo(target)...)
	}

	return res, nil
}

func (s *MemoryStore[K, T]) predecessors(k K) []K {
	res := append([]K(nil), s.parents[k]...)
	s.sort(res)

	return res
}

func (s *MemoryStore[K, T]) edgesTo(k K) []graph.Edge[K] {
	sources := s.predecessors(k)
	res := make([]graph.Edge[K], len(sources))
	for i, source := range sources {
		res[i] = s.edges[link[K]{source: source, target: k}]
	}

	return res
}

func (s *MemoryStore[K, T]) Predecessors(k K) []K {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.predecessors(k)
}

func (s *MemoryStore[K, T]) EdgesTo(k K) []graph.Edge[K] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.edgesTo(k)
}

func (s *MemoryStore[K, T]) sort(keys []K) {
	if s.less == nil {
		return
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return s.less(keys[i], keys[j])
	})
}

// CreatesCycle reports whether an edge from source to target would close a cycle, that is whether
// source can already be reached from target.
func (s *MemoryStore[K, T]) CreatesCycle(source, target K) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.vertices[source]; !ok {
		return false, errors.Wrapf(graph.ErrVertexNotFound, "source %v", source)
	}
	if _, ok := s.vertices[target]; !ok {
		return false, errors.Wrapf(graph.ErrVertexNotFound, "target %v", target)
	}

	visited := map[K]bool{}
	queue := []K{target}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == source {
			return true, nil
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		queue = append(queue, s.children[current]...)
	}

	return false, nil
}

var _ StepStore[string, string] = (*MemoryStore[string, string])(nil)
