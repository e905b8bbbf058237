package pipeline

import (
	"time"

	"github.com/askiada/go-evalpipeline/pkg/pipeline/model"
)

type StepOption func(s *model.StepInfo)

// StepKind labels the step, e.g. "deploy". Drawers and submitters use it.
func StepKind(kind string) StepOption {
	return func(s *model.StepInfo) {
		s.Kind = kind
	}
}

// StepKeepAlive keeps the remote job instance warm for period after the step finished.
func StepKeepAlive(period time.Duration) StepOption {
	return func(s *model.StepInfo) {
		s.Job.KeepAlivePeriod = period
	}
}

// StepPreExecutionCommands are run in the remote job before the step itself.
func StepPreExecutionCommands(commands ...string) StepOption {
	return func(s *model.StepInfo) {
		s.Job.PreExecutionCommands = append(s.Job.PreExecutionCommands, commands...)
	}
}

func StepInstanceType(instanceType string) StepOption {
	return func(s *model.StepInfo) {
		s.Job.InstanceType = instanceType
	}
}
