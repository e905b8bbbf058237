package model

import "time"

type stepType string

const (
	RootStepType   stepType = "root"
	NormalStepType stepType = "step"
	MergerStepType stepType = "merger"
)

// JobSettings are handed to the platform running the step remotely.
type JobSettings struct {
	// KeepAlivePeriod keeps the job instance warm for the next job using the same settings.
	KeepAlivePeriod      time.Duration
	PreExecutionCommands []string
	InstanceType         string
}

// StepInfo describes a step of the pipeline graph.
type StepInfo struct {
	Type stepType
	Name string
	// Kind is a free form label, e.g. "deploy" or "evaluation".
	Kind string
	// Inputs are the steps whose results are passed to this step, in argument order.
	Inputs []string
	// DependsOn are the steps that must finish before this one without passing data.
	DependsOn []string
	Job       JobSettings
}

// StepRef is implemented by every typed step handle.
type StepRef interface {
	Info() *StepInfo
}

// Step is a handle on a step producing a result of type O. It is passed to the steps consuming the
// result, which creates the data edges of the graph.
type Step[O any] struct {
	Details *StepInfo
}

func (s *Step[O]) Info() *StepInfo {
	if s == nil {
		return nil
	}

	return s.Details
}

var _ StepRef = (*Step[any])(nil)
