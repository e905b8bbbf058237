package model

import "time"

// PipelineOption defines the interface for pipeline options.
type PipelineOption interface {
	// New initialises the pipeline option.
	New() error
	// PrepareStep runs when a step is added, with the steps it reads data from.
	PrepareStep(parents []*StepInfo, step *StepInfo) error
	// PrepareDependency runs when step is ordered after parent without a data edge.
	PrepareDependency(parent, step *StepInfo) error
	// OnStepDone runs after a step executed successfully.
	OnStepDone(step *StepInfo, duration time.Duration) error
	// Finish runs after the pipeline is finished.
	Finish() error
}
