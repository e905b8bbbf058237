// Package assembler turns a pipeline configuration into the evaluation step graph.
//
// The graph has one preprocess step, one deploy and one evaluation step per model (preceded by a
// finetune step for fine-tuned models), a selection step when there is more than one model, one
// registration step and one cleanup step per model asking for it. Cleanup steps are ordered after the
// registration without consuming its result.
package assembler

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-evalpipeline/internal/s3uri"
	"github.com/askiada/go-evalpipeline/pkg/config"
	"github.com/askiada/go-evalpipeline/pkg/evaluation"
	"github.com/askiada/go-evalpipeline/pkg/pipeline"
	"github.com/askiada/go-evalpipeline/pkg/pipeline/model"
	"github.com/askiada/go-evalpipeline/pkg/provider"
	"github.com/askiada/go-evalpipeline/pkg/steps"
)

const (
	PreprocessStep   = "preprocess"
	SelectionStep    = "model_selection"
	RegistrationStep = "best_model_registration"

	KindPreprocess      = "preprocess"
	KindFinetune        = "finetune"
	KindDeploy          = "deploy"
	KindDeployFinetuned = "deploy_finetuned"
	KindEvaluation      = "evaluation"
	KindSelection       = "selection"
	KindRegistration    = "registration"
	KindCleanup         = "cleanup"

	FinetuneKeepAlive   = 2400 * time.Second
	EvaluationKeepAlive = 1200 * time.Second
)

var ErrNoModels = errors.New("configuration has no model")

func FinetuneStep(m config.Model) string {
	return "finetune_" + m.StepName()
}

func DeployStep(m config.Model) string {
	if m.IsFinetuning() {
		return "deploy_finetuned_" + m.StepName()
	}

	return "deploy_" + m.StepName()
}

func EvaluationStep(m config.Model) string {
	return "evaluation_" + m.StepName()
}

func CleanupStep(m config.Model) string {
	return "cleanup_" + m.StepName()
}

type Preprocessor interface {
	Preprocess(ctx context.Context, inputPath, outputPath string) (string, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, model config.Model, runner evaluation.ModelRunner, preprocessed string, deployed provider.DeployResult) (provider.EvaluationResult, error)
}

// Paths locate the data of one run.
type Paths struct {
	// Input is the root of the input data, e.g. s3://bucket/llm-evaluation-at-scale-example.
	Input string
	// Output receives everything the run writes.
	Output string
	// Bucket receives the registration reports. It defaults to the bucket of Output.
	Bucket string
}

// OutputPath returns <input>/output_<pipeline>_<execution id>.
func OutputPath(input, pipelineName, executionID string) string {
	return s3uri.Join(input, "output_"+pipelineName+"_"+executionID)
}

// ExecutionID formats t the way output paths expect.
func ExecutionID(t time.Time) string {
	return t.Format("2006_01_02_15_04_05")
}

type Assembler struct {
	cfg          *config.Config
	providers    *provider.Registry
	preprocessor Preprocessor
	evaluator    Evaluator
	selector     steps.Selector
	paths        Paths
}

func New(cfg *config.Config, providers *provider.Registry, preprocessor Preprocessor, evaluator Evaluator, paths Paths) *Assembler {
	return &Assembler{
		cfg:          cfg,
		providers:    providers,
		preprocessor: preprocessor,
		evaluator:    evaluator,
		selector:     steps.NewSelector(cfg.Algorithms),
		paths:        paths,
	}
}

func (a *Assembler) registration() (provider.Registration, error) {
	bucket := a.paths.Bucket
	if bucket == "" {
		loc, err := s3uri.Parse(a.paths.Output)
		if err != nil {
			return provider.Registration{}, errors.Wrap(err, "unable to find the registration bucket")
		}
		bucket = loc.Bucket
	}

	return provider.Registration{
		ModelPackageGroup: a.cfg.Registration.ModelPackageGroupName,
		ApprovalStatus:    a.cfg.Registration.ApprovalStatus,
		Bucket:            bucket,
		AttachMetrics:     a.cfg.Registration.AttachMetrics,
	}, nil
}

// Build assembles the step graph. opts are handed to the pipeline, e.g. a drawer or a measure.
func (a *Assembler) Build(opts ...model.PipelineOption) (*pipeline.Pipeline, error) {
	if len(a.cfg.Models) == 0 {
		return nil, ErrNoModels
	}

	reg, err := a.registration()
	if err != nil {
		return nil, err
	}

	pipe, err := pipeline.New(a.cfg.Pipeline.Name, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create pipeline")
	}

	inputPath := s3uri.Resolve(a.paths.Input, a.cfg.Dataset.InputDataLocation)
	preprocessed, err := pipeline.AddRootStep(pipe, PreprocessStep, func(ctx context.Context) (string, error) {
		return a.preprocessor.Preprocess(ctx, inputPath, a.paths.Output)
	}, pipeline.StepKind(KindPreprocess))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to add %s", PreprocessStep)
	}

	evaluations := make([]*model.Step[provider.EvaluationResult], 0, len(a.cfg.Models))
	for _, m := range a.cfg.Models {
		evaluated, err := a.addModel(pipe, m, preprocessed)
		if err != nil {
			return nil, err
		}
		evaluations = append(evaluations, evaluated)
	}

	best := evaluations[0]
	if len(evaluations) > 1 {
		best, err = pipeline.AddMerger(pipe, SelectionStep, evaluations, a.selector.Select, pipeline.StepKind(KindSelection))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add %s", SelectionStep)
		}
	}

	registered, err := pipeline.AddStep(pipe, RegistrationStep, best, func(ctx context.Context, winner provider.EvaluationResult) (string, error) {
		prov, err := a.providers.Get(winner.ModelConfig.Provider)
		if err != nil {
			return "", err
		}

		return prov.Register(ctx, winner, reg)
	}, pipeline.StepKind(KindRegistration))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to add %s", RegistrationStep)
	}

	for _, m := range a.cfg.Models {
		if !m.CleanupEndpoint {
			continue
		}

		err = a.addCleanup(pipe, m, registered)
		if err != nil {
			return nil, err
		}
	}

	return pipe, nil
}

// addModel adds the finetune, deploy and evaluation steps of m and returns the evaluation step.
func (a *Assembler) addModel(pipe *pipeline.Pipeline, m config.Model, preprocessed *model.Step[string]) (*model.Step[provider.EvaluationResult], error) {
	prov, err := a.providers.Get(m.Provider)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", m.StepName())
	}

	var deployed *model.Step[provider.DeployResult]
	if m.IsFinetuning() {
		finetuned, err := pipeline.AddRootStep(pipe, FinetuneStep(m), func(ctx context.Context) (provider.FinetuneResult, error) {
			return prov.Finetune(ctx, m)
		}, pipeline.StepKind(KindFinetune), pipeline.StepKeepAlive(FinetuneKeepAlive))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add %s", FinetuneStep(m))
		}

		deployed, err = pipeline.AddStep(pipe, DeployStep(m), finetuned, func(ctx context.Context, job provider.FinetuneResult) (provider.DeployResult, error) {
			return prov.DeployFinetuned(ctx, m, job)
		}, pipeline.StepKind(KindDeployFinetuned))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add %s", DeployStep(m))
		}
	} else {
		deployed, err = pipeline.AddRootStep(pipe, DeployStep(m), func(ctx context.Context) (provider.DeployResult, error) {
			return prov.Deploy(ctx, m)
		}, pipeline.StepKind(KindDeploy))
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add %s", DeployStep(m))
		}
	}

	evaluated, err := pipeline.AddStep2(pipe, EvaluationStep(m), preprocessed, deployed,
		func(ctx context.Context, dataset string, endpoint provider.DeployResult) (provider.EvaluationResult, error) {
			return a.evaluator.Evaluate(ctx, m, prov.ModelRunner(m), dataset, endpoint)
		},
		pipeline.StepKind(KindEvaluation),
		pipeline.StepKeepAlive(EvaluationKeepAlive),
		pipeline.StepPreExecutionCommands(a.cfg.Evaluation.PreExecutionCommands...),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to add %s", EvaluationStep(m))
	}

	return evaluated, nil
}

func (a *Assembler) addCleanup(pipe *pipeline.Pipeline, m config.Model, registered model.StepRef) error {
	prov, err := a.providers.Get(m.Provider)
	if err != nil {
		return errors.Wrapf(err, "model %s", m.StepName())
	}

	cleanup, err := pipeline.AddRootStep(pipe, CleanupStep(m), func(ctx context.Context) (provider.CleanupResult, error) {
		return prov.Cleanup(ctx, m)
	}, pipeline.StepKind(KindCleanup))
	if err != nil {
		return errors.Wrapf(err, "unable to add %s", CleanupStep(m))
	}

	err = pipeline.DependsOn(pipe, cleanup, registered)
	if err != nil {
		return errors.Wrapf(err, "unable to order %s", CleanupStep(m))
	}

	return nil
}
