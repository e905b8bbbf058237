package steps

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/askiada/go-evalpipeline/internal/s3uri"
	"github.com/askiada/go-evalpipeline/pkg/config"
	"github.com/askiada/go-evalpipeline/pkg/evaluation"
	"github.com/askiada/go-evalpipeline/pkg/provider"
)

var ErrNotDeployed = errors.New("model is not deployed")

// Evaluator runs the configured algorithms against a deployed model.
type Evaluator struct {
	harness    evaluation.Harness
	dataset    config.Dataset
	algorithms []config.Algorithm
}

func NewEvaluator(harness evaluation.Harness, dataset config.Dataset, algorithms []config.Algorithm) *Evaluator {
	return &Evaluator{
		harness:    harness,
		dataset:    dataset,
		algorithms: algorithms,
	}
}

// Evaluate evaluates model on the dataset written under preprocessed. The result keeps the model
// configuration so the later steps know which model it belongs to.
func (e *Evaluator) Evaluate(ctx context.Context, model config.Model, runner evaluation.ModelRunner, preprocessed string, deployed provider.DeployResult) (provider.EvaluationResult, error) {
	if !deployed.ModelDeployed {
		return provider.EvaluationResult{}, errors.Wrap(ErrNotDeployed, model.StepName())
	}

	req := evaluation.Request{
		ModelRunner: runner,
		Dataset: evaluation.Dataset{
			Name:                 e.dataset.DatasetName,
			URI:                  DatasetURI(preprocessed, e.dataset),
			MimeType:             e.dataset.DatasetMimeType,
			ModelInputLocation:   e.dataset.ModelInputKey,
			TargetOutputLocation: e.dataset.TargetOutputKey,
		},
		Algorithms: e.algorithms,
		OutputPath: s3uri.Join(preprocessed, "evaluation", model.StepName()),
	}

	outputs, err := e.harness.Evaluate(ctx, req)
	if err != nil {
		return provider.EvaluationResult{}, errors.Wrapf(err, "unable to evaluate %s", model.StepName())
	}

	logrus.WithFields(logrus.Fields{"step": "evaluation", "model_id": model.ModelID}).
		Infof("%d evaluation outputs", len(outputs))

	return provider.EvaluationResult{EvalResult: outputs, ModelConfig: model}, nil
}
