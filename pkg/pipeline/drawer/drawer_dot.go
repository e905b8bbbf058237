package drawer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/template"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1" //nolint

	"github.com/askiada/go-evalpipeline/pkg/pipeline/measure"
	"github.com/askiada/go-evalpipeline/pkg/pipeline/model"
)

// kindColours maps step kinds to a fill colour. Unknown kinds are drawn white.
var kindColours = map[string][3]uint8{
	"preprocess":       {204, 229, 255},
	"finetune":         {255, 229, 204},
	"deploy":           {204, 255, 204},
	"deploy_finetuned": {178, 255, 178},
	"evaluation":       {255, 255, 204},
	"selection":        {229, 204, 255},
	"registration":     {255, 204, 229},
	"cleanup":          {224, 224, 224},
}

// DOTDrawer writes the pipeline graph in the Graphviz DOT language.
type DOTDrawer struct {
	graph  graph.Graph[string, string]
	order  map[string]int
	output func() (io.WriteCloser, error)
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error {
	return nil
}

func newDOTDrawer(output func() (io.WriteCloser, error)) *DOTDrawer {
	return &DOTDrawer{
		graph:  graph.New(graph.StringHash, graph.Directed()),
		order:  make(map[string]int),
		output: output,
	}
}

// NewDOTDrawer creates a drawer writing to wrt.
func NewDOTDrawer(wrt io.Writer) *DOTDrawer {
	return newDOTDrawer(func() (io.WriteCloser, error) {
		return nopCloser{wrt}, nil
	})
}

// NewFileDrawer creates a drawer writing to fileName.
func NewFileDrawer(fileName string) *DOTDrawer {
	return newDOTDrawer(func() (io.WriteCloser, error) {
		file, err := os.Create(fileName)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to create file %s", fileName)
		}

		return file, nil
	})
}

// AddStep adds a step to the pipeline graph.
func (d *DOTDrawer) AddStep(step *model.StepInfo) error {
	attributes := []func(*graph.VertexProperties){
		graph.VertexAttribute("shape", "box"),
		graph.VertexAttribute("style", "filled"),
	}

	fill := "#ffffff"
	if rgb, ok := kindColours[step.Kind]; ok {
		colour, err := colors.RGB(rgb[0], rgb[1], rgb[2])
		if err != nil {
			return errors.Wrap(err, "unable to get colour")
		}
		fill = colour.ToHEX().String()
	}
	attributes = append(attributes, graph.VertexAttribute("fillcolor", fill))

	if step.Kind != "" {
		attributes = append(attributes, graph.VertexAttribute("xlabel", step.Kind))
	}

	err := d.graph.AddVertex(step.Name, attributes...)
	if err != nil {
		return errors.Wrap(err, "unable to add vertex")
	}
	d.order[step.Name] = len(d.order)

	return nil
}

// AddLink adds a link between parent and child steps. Ordering links are dashed.
func (d *DOTDrawer) AddLink(parentName, childName string, kind model.EdgeKind) error {
	options := []func(*graph.EdgeProperties){}
	if kind == model.OrderEdge {
		options = append(options, graph.EdgeAttribute("style", "dashed"))
	}

	err := d.graph.AddEdge(parentName, childName, options...)
	if err != nil {
		return errors.Wrapf(err, "unable to add edge from %s to %s", parentName, childName)
	}

	return nil
}

// Draw writes the pipeline graph.
func (d *DOTDrawer) Draw() error {
	wrt, err := d.output()
	if err != nil {
		return err
	}

	err = dot(d.graph, d.order, wrt, GraphAttribute("rankdir", "LR"))
	if err != nil {
		_ = wrt.Close()

		return errors.Wrap(err, "unable to write dot graph")
	}

	return wrt.Close()
}

const maxRGB = 240

// AddMeasure adds the duration of each step to its label and colours its border from blue (fastest)
// to red (slowest).
func (d *DOTDrawer) AddMeasure(msr measure.Measure) error {
	metrics := msr.AllMetrics()
	if len(metrics) == 0 {
		return nil
	}

	var minValue, maxValue time.Duration
	first := true
	for _, mt := range metrics {
		if mt.Runs() == 0 {
			continue
		}
		elapsed := mt.Duration()
		if first || elapsed < minValue {
			minValue = elapsed
		}
		if first || elapsed > maxValue {
			maxValue = elapsed
		}
		first = false
	}

	for name, mt := range metrics {
		if mt.Runs() == 0 {
			continue
		}

		_, properties, err := d.graph.VertexWithProperties(name)
		if err != nil {
			return errors.Wrap(err, "unable to get vertex properties")
		}

		fraction := 1.0
		if maxValue > minValue {
			fraction = float64(mt.Duration()-minValue) / float64(maxValue-minValue)
		}

		red := maxRGB * fraction
		blue := maxRGB - maxRGB*fraction

		colour, err := colors.RGB(uint8(red), 0, uint8(blue)) //nolint
		if err != nil {
			return errors.Wrap(err, "unable to get colour")
		}

		properties.Attributes["color"] = colour.ToHEX().String()
		properties.Attributes["penwidth"] = "2"
		if label, ok := properties.Attributes["xlabel"]; ok {
			properties.Attributes["xlabel"] = label + ", " + mt.Duration().String()
		} else {
			properties.Attributes["xlabel"] = mt.Duration().String()
		}
	}

	return nil
}

//nolint:lll //this is a template
const dotTemplate = `strict {{.GraphType}} {
	{{range $k, $v := .Attributes}}
		{{$k}}="{{$v}}";
	{{end}}
	{{range $s := .Statements}}
		"{{.Source}}" {{if .Target}}{{$.EdgeOperator}} "{{.Target}}" [ {{range $k, $v := .EdgeAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.EdgeWeight}} ]{{else}}[ {{range $k, $v := .HTMLAttributes}}{{$k}}={{$v}}, {{end}} {{range $k, $v := .SourceAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.SourceWeight}} ]{{end}};
	{{end}}
	}
	`

type description struct {
	GraphType    string
	Attributes   map[string]string
	EdgeOperator string
	Statements   []statement
}

type statement struct {
	Source           interface{}
	Target           interface{}
	SourceAttributes map[string]string
	HTMLAttributes   map[string]string
	EdgeAttributes   map[string]string
	SourceWeight     int
	EdgeWeight       int
}

func dot(gra graph.Graph[string, string], order map[string]int, wrt io.Writer, options ...func(*description)) error {
	desc, err := generateDOT(gra, order, options...)
	if err != nil {
		return fmt.Errorf("failed to generate DOT description: %w", err)
	}

	return renderDOT(wrt, desc)
}

// GraphAttribute is a functional option for the [DOT] method.
func GraphAttribute(key, value string) func(*description) {
	return func(d *description) {
		d.Attributes[key] = value
	}
}

func generateDOT(gra graph.Graph[string, string], order map[string]int, options ...func(*description)) (description, error) {
	desc := description{
		GraphType:    "graph",
		Attributes:   make(map[string]string),
		EdgeOperator: "--",
		Statements:   make([]statement, 0),
	}

	for _, option := range options {
		option(&desc)
	}

	if gra.Traits().IsDirected {
		desc.GraphType = "digraph"
		desc.EdgeOperator = "->"
	}

	adjacencyMap, err := gra.AdjacencyMap()
	if err != nil {
		return desc, errors.Wrap(err, "unable to get adjacency map")
	}

	byOrder := func(keys []string) {
		sort.Slice(keys, func(i, j int) bool {
			return order[keys[i]] < order[keys[j]]
		})
	}

	vertices := make([]string, 0, len(adjacencyMap))
	for vertex := range adjacencyMap {
		vertices = append(vertices, vertex)
	}
	byOrder(vertices)

	for _, vertex := range vertices {
		_, sourceProperties, err := gra.VertexWithProperties(vertex)
		if err != nil {
			return desc, errors.Wrap(err, "unable to get vertex properties")
		}

		attributes := make(map[string]string, len(sourceProperties.Attributes))
		htmlAttributes := make(map[string]string)
		for k, v := range sourceProperties.Attributes {
			attributes[k] = v
		}

		if xlabel, ok := attributes["xlabel"]; ok {
			htmlAttributes["label"] = fmt.Sprintf(`<%+v <BR /> <FONT POINT-SIZE="10">%s</FONT>>`, vertex, xlabel)

			delete(attributes, "xlabel")
		}

		stmt := statement{
			Source:           vertex,
			SourceWeight:     sourceProperties.Weight,
			SourceAttributes: attributes,
			HTMLAttributes:   htmlAttributes,
		}
		desc.Statements = append(desc.Statements, stmt)

		targets := make([]string, 0, len(adjacencyMap[vertex]))
		for target := range adjacencyMap[vertex] {
			targets = append(targets, target)
		}
		byOrder(targets)

		for _, target := range targets {
			edge := adjacencyMap[vertex][target]
			stmt := statement{
				Source:         vertex,
				Target:         target,
				EdgeWeight:     edge.Properties.Weight,
				EdgeAttributes: edge.Properties.Attributes,
			}
			desc.Statements = append(desc.Statements, stmt)
		}
	}

	return desc, nil
}

func renderDOT(wrt io.Writer, desc description) error {
	tpl, err := template.New("dotTemplate").Parse(dotTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	err = tpl.Execute(wrt, desc)
	if err != nil {
		return errors.Wrap(err, "unable to execute template")
	}

	return nil
}

var _ Drawer = (*DOTDrawer)(nil)
