package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-evalpipeline/pkg/pipeline/model"
)

// Pipeline is a directed acyclic graph of steps.
type Pipeline struct {
	name     string
	feature  *feature
	nodes    map[string]*node
	errcList *errorChans
	opts     []model.PipelineOption
}

// node binds a step description to the function executing it.
type node struct {
	info *model.StepInfo
	run  func(ctx context.Context, results ResultStore) error
}

// New creates a new pipeline.
func New(name string, opts ...model.PipelineOption) (*Pipeline, error) {
	pipe := &Pipeline{
		name:     name,
		feature:  newFeature(),
		nodes:    make(map[string]*node),
		errcList: &errorChans{},
		opts:     opts,
	}

	for _, opt := range opts {
		err := opt.New()
		if err != nil {
			return nil, errors.Wrap(err, "unable to apply pipeline option")
		}
	}

	return pipe, nil
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// waitForPipeline waits for results from all error channels.
// It returns early on the first error.
func waitForPipeline(errs ...*errorChan) error {
	errc := mergeErrors(errs...)
	for err := range errc {
		if err != nil {
			return err
		}
	}

	return nil
}

// Run executes every step in this process. A step starts once all its parents finished. Steps without
// a path between them run concurrently. The first error cancels the remaining steps.
func (p *Pipeline) Run(ctx context.Context, results ResultStore) error {
	if results == nil {
		return ErrResultStoreMustBeSet
	}

	dCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	definition, err := p.Definition()
	if err != nil {
		return err
	}

	done := make(map[string]chan struct{}, len(definition.Steps))
	for _, step := range definition.Steps {
		done[step.Name] = make(chan struct{})
	}

	p.errcList = &errorChans{}

	for _, step := range definition.Steps {
		parents := p.feature.parents(step.Name)
		errC := p.errcList.open(step.Name)

		go func(n *node) {
			defer close(errC)

			for _, parent := range parents {
				select {
				case <-dCtx.Done():
					errC <- dCtx.Err()

					return
				case <-done[parent]:
				}
			}

			err := p.runNode(dCtx, n, results)
			if err != nil {
				errC <- err

				return
			}
			close(done[n.info.Name])
		}(p.nodes[step.Name])
	}

	// Wait for all steps to finish.
	err = waitForPipeline(p.errcList.list...)
	if err != nil {
		return err
	}

	return p.Finish()
}

// RunStep executes a single step. The results of its parents must already be in results.
func (p *Pipeline) RunStep(ctx context.Context, name string, results ResultStore) error {
	if results == nil {
		return ErrResultStoreMustBeSet
	}

	n, ok := p.nodes[name]
	if !ok {
		return errors.Wrap(ErrStepNotFound, name)
	}

	err := p.runNode(ctx, n, results)
	if err != nil {
		return errors.Wrap(err, name)
	}

	return nil
}

func (p *Pipeline) runNode(ctx context.Context, n *node, results ResultStore) error {
	start := time.Now()

	err := n.run(ctx, results)
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	for _, opt := range p.opts {
		err := opt.OnStepDone(n.info, elapsed)
		if err != nil {
			return errors.Wrap(err, "unable to run step done function")
		}
	}

	return nil
}

// Finish runs the Finish hook of every pipeline option. Run calls it, callers that only build the
// graph call it themselves.
func (p *Pipeline) Finish() error {
	for _, opt := range p.opts {
		err := opt.Finish()
		if err != nil {
			return errors.Wrap(err, "unable to finish pipeline option")
		}
	}

	return nil
}
