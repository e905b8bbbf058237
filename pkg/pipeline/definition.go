package pipeline

import (
	"github.com/askiada/go-evalpipeline/pkg/pipeline/model"
)

// Definition is a snapshot of the step graph. Steps are topologically sorted, ties keep the order in
// which steps were added.
type Definition struct {
	Name  string
	Steps []*model.StepInfo
	Edges []model.Edge
}

// Definition exports the step graph.
func (p *Pipeline) Definition() (*Definition, error) {
	order, err := p.feature.sorted()
	if err != nil {
		return nil, err
	}

	def := &Definition{
		Name:  p.name,
		Steps: make([]*model.StepInfo, 0, len(order)),
	}
	for _, name := range order {
		def.Steps = append(def.Steps, p.nodes[name].info)
		def.Edges = append(def.Edges, p.feature.edgesTo(name)...)
	}

	return def, nil
}

// Step returns the step called name, or nil.
func (d *Definition) Step(name string) *model.StepInfo {
	for _, step := range d.Steps {
		if step.Name == name {
			return step
		}
	}

	return nil
}

// StepsOfKind returns the steps labelled kind.
func (d *Definition) StepsOfKind(kind string) []*model.StepInfo {
	var res []*model.StepInfo
	for _, step := range d.Steps {
		if step.Kind == kind {
			res = append(res, step)
		}
	}

	return res
}

// EdgesTo returns the edges of the given kind ending at name.
func (d *Definition) EdgesTo(name string, kind model.EdgeKind) []model.Edge {
	var res []model.Edge
	for _, e := range d.Edges {
		if e.To == name && e.Kind == kind {
			res = append(res, e)
		}
	}

	return res
}

// Reachable reports whether to can be reached from from following edges of any kind.
func (d *Definition) Reachable(from, to string) bool {
	children := map[string][]string{}
	for _, e := range d.Edges {
		children[e.From] = append(children[e.From], e.To)
	}

	visited := map[string]bool{}
	stack := []string{from}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == to {
			return true
		}
		if visited[current] {
			continue
		}
		visited[current] = true
		stack = append(stack, children[current]...)
	}

	return false
}
