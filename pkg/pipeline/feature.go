package pipeline

import (
	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/askiada/go-evalpipeline/internal/store"
	"github.com/askiada/go-evalpipeline/pkg/pipeline/model"
)

// feature keeps the step graph. Vertices are keyed by step name, every edge carries its model.EdgeKind.
type feature struct {
	store store.StepStore[string, *model.StepInfo]
	graph graph.Graph[string, *model.StepInfo]
	// index is the insertion rank of each step, used to keep orderings stable.
	index map[string]int
}

func stepHash(info *model.StepInfo) string {
	return info.Name
}

func newFeature() *feature {
	f := &feature{
		index: make(map[string]int),
	}
	f.store = store.NewMemoryStore[string, *model.StepInfo](f.less)
	f.graph = graph.NewWithStore(stepHash, f.store, graph.Directed(), graph.Acyclic(), graph.PreventCycles())

	return f
}

func (f *feature) less(a, b string) bool {
	return f.index[a] < f.index[b]
}

func (f *feature) addStep(info *model.StepInfo) error {
	err := f.graph.AddVertex(info)
	if err != nil {
		if errors.Is(err, graph.ErrVertexAlreadyExists) {
			return errors.Wrap(ErrStepExists, info.Name)
		}

		return errors.Wrapf(err, "unable to add step %s", info.Name)
	}
	f.index[info.Name] = len(f.index)

	return nil
}

func (f *feature) addLink(parentName, childName string, kind model.EdgeKind) error {
	err := f.graph.AddEdge(parentName, childName, graph.EdgeAttribute(model.EdgeKindAttribute, string(kind)))
	if err != nil {
		switch {
		case errors.Is(err, graph.ErrEdgeCreatesCycle):
			return errors.Wrapf(ErrCycle, "%s -> %s", parentName, childName)
		case errors.Is(err, graph.ErrVertexNotFound):
			return errors.Wrapf(ErrStepNotFound, "%s -> %s", parentName, childName)
		case errors.Is(err, graph.ErrEdgeAlreadyExists):
			return errors.Wrapf(ErrEdgeExists, "%s -> %s", parentName, childName)
		}

		return errors.Wrapf(err, "unable to add edge from %s to %s", parentName, childName)
	}

	return nil
}

// rollback removes the step name, added last, with its edges, then returns cause. A step is only
// registered to run once it is fully linked.
func (f *feature) rollback(name string, cause error) error {
	for _, parent := range f.store.Predecessors(name) {
		err := f.graph.RemoveEdge(parent, name)
		if err != nil {
			return errors.Wrapf(cause, "unable to remove edge %s -> %s: %v", parent, name, err)
		}
	}

	err := f.graph.RemoveVertex(name)
	if err != nil {
		return errors.Wrapf(cause, "unable to remove step %s: %v", name, err)
	}
	delete(f.index, name)

	return cause
}

// parents returns every step that must finish before name, data and order edges alike.
func (f *feature) parents(name string) []string {
	return f.store.Predecessors(name)
}

func (f *feature) edgesTo(name string) []model.Edge {
	edges := f.store.EdgesTo(name)
	res := make([]model.Edge, len(edges))
	for i, e := range edges {
		res[i] = model.Edge{
			From: e.Source,
			To:   e.Target,
			Kind: model.EdgeKind(e.Properties.Attributes[model.EdgeKindAttribute]),
		}
	}

	return res
}

func (f *feature) sorted() ([]string, error) {
	order, err := graph.StableTopologicalSort(f.graph, f.less)
	if err != nil {
		return nil, errors.Wrap(err, "unable to sort steps")
	}

	return order, nil
}
