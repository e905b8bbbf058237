package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/askiada/go-evalpipeline/pkg/pipeline/model"
)

// AddMerger adds a fan-in step receiving the results of all steps, in the order they are given.
// It starts once every input finished.
func AddMerger[I any, O any](pipe *Pipeline, name string, steps []*model.Step[I], mergeFn func(context.Context, ...I) (O, error), opts ...StepOption) (*model.Step[O], error) {
	if len(steps) == 0 {
		return nil, errors.Wrap(ErrMergerInputs, name)
	}

	inputs := make([]model.StepRef, len(steps))
	for i, step := range steps {
		if step == nil {
			return nil, errors.Wrap(ErrInputMustBeSet, name)
		}
		inputs[i] = step
	}

	info, err := prepareStep(pipe, model.StepInfo{Type: model.MergerStepType, Name: name}, inputs, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to prepare merger")
	}

	return addStep(pipe, info, func(ctx context.Context, results ResultStore) (O, error) {
		var out O

		ins := make([]I, len(steps))
		for i, step := range steps {
			in, err := LoadResult[I](ctx, results, step.Details.Name)
			if err != nil {
				return out, err
			}
			ins[i] = in
		}

		return mergeFn(ctx, ins...)
	}), nil
}
