package pipeline

import (
	"context"

	"github.com/askiada/go-evalpipeline/pkg/pipeline/model"
)

// AddRootStep adds a step without data inputs. It can still be ordered after other steps with
// DependsOn.
func AddRootStep[O any](pipe *Pipeline, name string, stepFn func(ctx context.Context) (O, error), opts ...StepOption) (*model.Step[O], error) {
	info, err := prepareStep(pipe, model.StepInfo{Type: model.RootStepType, Name: name}, nil, opts...)
	if err != nil {
		return nil, err
	}

	return addStep(pipe, info, func(ctx context.Context, _ ResultStore) (O, error) {
		return stepFn(ctx)
	}), nil
}
