package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/askiada/go-evalpipeline/pkg/pipeline/model"
)

// prepareStep registers a step reading the results of inputs, in order, and links it to them with
// data edges.
func prepareStep(pipe *Pipeline, details model.StepInfo, inputs []model.StepRef, opts ...StepOption) (*model.StepInfo, error) {
	if pipe == nil {
		return nil, ErrPipelineMustBeSet
	}

	info := &details
	parents := make([]*model.StepInfo, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for i, input := range inputs {
		if input == nil || input.Info() == nil {
			return nil, errors.Wrap(ErrInputMustBeSet, info.Name)
		}
		parents[i] = input.Info()
		if seen[parents[i].Name] {
			return nil, errors.Wrapf(ErrEdgeExists, "%s -> %s", parents[i].Name, info.Name)
		}
		seen[parents[i].Name] = true
		info.Inputs = append(info.Inputs, parents[i].Name)
	}

	for _, opt := range opts {
		opt(info)
	}

	err := pipe.feature.addStep(info)
	if err != nil {
		return nil, err
	}

	for _, parent := range parents {
		err = pipe.feature.addLink(parent.Name, info.Name, model.DataEdge)
		if err != nil {
			return nil, pipe.feature.rollback(info.Name, err)
		}
	}

	for _, opt := range pipe.opts {
		err := opt.PrepareStep(parents, info)
		if err != nil {
			return nil, pipe.feature.rollback(info.Name, errors.Wrap(err, "unable to run before step function"))
		}
	}

	return info, nil
}

func addStep[O any](pipe *Pipeline, info *model.StepInfo, run func(ctx context.Context, results ResultStore) (O, error)) *model.Step[O] {
	pipe.nodes[info.Name] = &node{
		info: info,
		run: func(ctx context.Context, results ResultStore) error {
			out, err := run(ctx, results)
			if err != nil {
				return err
			}

			return saveResult(ctx, results, info.Name, out)
		},
	}

	return &model.Step[O]{Details: info}
}

// AddStep adds a step consuming the result of input.
func AddStep[I any, O any](pipe *Pipeline, name string, input *model.Step[I], stepFn func(context.Context, I) (O, error), opts ...StepOption) (*model.Step[O], error) {
	if input == nil {
		return nil, ErrInputMustBeSet
	}

	info, err := prepareStep(pipe, model.StepInfo{Type: model.NormalStepType, Name: name}, []model.StepRef{input}, opts...)
	if err != nil {
		return nil, err
	}

	return addStep(pipe, info, func(ctx context.Context, results ResultStore) (O, error) {
		var out O

		in, err := LoadResult[I](ctx, results, input.Details.Name)
		if err != nil {
			return out, err
		}

		return stepFn(ctx, in)
	}), nil
}

// AddStep2 adds a step consuming the results of two steps.
func AddStep2[I1 any, I2 any, O any](pipe *Pipeline, name string, input1 *model.Step[I1], input2 *model.Step[I2], stepFn func(context.Context, I1, I2) (O, error), opts ...StepOption) (*model.Step[O], error) {
	if input1 == nil || input2 == nil {
		return nil, ErrInputMustBeSet
	}

	info, err := prepareStep(pipe, model.StepInfo{Type: model.NormalStepType, Name: name}, []model.StepRef{input1, input2}, opts...)
	if err != nil {
		return nil, err
	}

	return addStep(pipe, info, func(ctx context.Context, results ResultStore) (O, error) {
		var out O

		in1, err := LoadResult[I1](ctx, results, input1.Details.Name)
		if err != nil {
			return out, err
		}

		in2, err := LoadResult[I2](ctx, results, input2.Details.Name)
		if err != nil {
			return out, err
		}

		return stepFn(ctx, in1, in2)
	}), nil
}

// DependsOn orders step after parents without passing any data between them.
func DependsOn(pipe *Pipeline, step model.StepRef, parents ...model.StepRef) error {
	if pipe == nil {
		return ErrPipelineMustBeSet
	}
	if step == nil || step.Info() == nil {
		return ErrInputMustBeSet
	}

	info := step.Info()
	for _, parent := range parents {
		if parent == nil || parent.Info() == nil {
			return errors.Wrap(ErrInputMustBeSet, info.Name)
		}

		err := pipe.feature.addLink(parent.Info().Name, info.Name, model.OrderEdge)
		if err != nil {
			return err
		}
		info.DependsOn = append(info.DependsOn, parent.Info().Name)

		for _, opt := range pipe.opts {
			err := opt.PrepareDependency(parent.Info(), info)
			if err != nil {
				return errors.Wrap(err, "unable to run before dependency function")
			}
		}
	}

	return nil
}
