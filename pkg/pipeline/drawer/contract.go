package drawer

import (
	"github.com/askiada/go-evalpipeline/pkg/pipeline/measure"
	"github.com/askiada/go-evalpipeline/pkg/pipeline/model"
)

// Drawer is an interface that defines the methods for drawing a pipeline.
type Drawer interface {
	// AddStep adds a step to the pipeline drawer.
	AddStep(step *model.StepInfo) error
	// AddLink adds a link between parent and child steps.
	AddLink(parentStepName, childStepName string, kind model.EdgeKind) error
	// Draw writes the pipeline graph.
	Draw() error
	// AddMeasure labels and colours the steps with their durations.
	AddMeasure(measure measure.Measure) error
}
