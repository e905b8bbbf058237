package drawer

import (
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-evalpipeline/pkg/pipeline/measure"
	"github.com/askiada/go-evalpipeline/pkg/pipeline/model"
)

type pipelineDrawer struct {
	Drawer
	m measure.Measure
}

func (pd *pipelineDrawer) New() error {
	return nil
}

func (pd *pipelineDrawer) PrepareStep(parentSteps []*model.StepInfo, step *model.StepInfo) error {
	err := pd.AddStep(step)
	if err != nil {
		return err
	}

	for _, parent := range parentSteps {
		err := pd.AddLink(parent.Name, step.Name, model.DataEdge)
		if err != nil {
			return err
		}
	}

	return nil
}

func (pd *pipelineDrawer) PrepareDependency(parentStep, step *model.StepInfo) error {
	return pd.AddLink(parentStep.Name, step.Name, model.OrderEdge)
}

func (pd *pipelineDrawer) OnStepDone(_ *model.StepInfo, _ time.Duration) error {
	return nil
}

func (pd *pipelineDrawer) Finish() error {
	if pd.m != nil {
		err := pd.AddMeasure(pd.m)
		if err != nil {
			return errors.Wrap(err, "unable to add measure")
		}
	}

	err := pd.Draw()
	if err != nil {
		return errors.Wrap(err, "unable to draw pipeline")
	}

	return nil
}

// PipelineDrawer draws the pipeline when it finishes. measure can be nil.
func PipelineDrawer(drawer Drawer, measure measure.Measure) model.PipelineOption {
	return &pipelineDrawer{drawer, measure}
}
