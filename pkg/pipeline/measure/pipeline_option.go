package measure

import (
	"time"

	"github.com/askiada/go-evalpipeline/pkg/pipeline/model"
)

// pipelineMeasure only reacts to steps being added and finishing.
type pipelineMeasure struct {
	msr Measure
}

func (pm *pipelineMeasure) New() error {
	return nil
}

func (pm *pipelineMeasure) PrepareStep(_ []*model.StepInfo, step *model.StepInfo) error {
	pm.msr.AddMetric(step.Name)

	return nil
}

func (pm *pipelineMeasure) PrepareDependency(_, _ *model.StepInfo) error {
	return nil
}

func (pm *pipelineMeasure) OnStepDone(step *model.StepInfo, duration time.Duration) error {
	mt := pm.msr.GetMetric(step.Name)
	if mt == nil {
		mt = pm.msr.AddMetric(step.Name)
	}
	mt.AddDuration(duration)

	return nil
}

func (pm *pipelineMeasure) Finish() error {
	return nil
}

// PipelineMeasure records the duration of every step run by the pipeline into measure.
func PipelineMeasure(measure Measure) model.PipelineOption {
	return &pipelineMeasure{msr: measure}
}
