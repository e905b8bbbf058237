// Package provider defines how a model hub fine-tunes, deploys, registers and removes models.
package provider

import (
	"context"

	"github.com/askiada/go-evalpipeline/pkg/config"
	"github.com/askiada/go-evalpipeline/pkg/evaluation"
)

type FinetuneResult struct {
	TrainingJobName string `json:"training_job_name"`
}

type DeployResult struct {
	ModelDeployed bool   `json:"model_deployed"`
	EndpointName  string `json:"endpoint_name,omitempty"`
}

type EvaluationResult struct {
	EvalResult  []evaluation.Output `json:"eval_result"`
	ModelConfig config.Model        `json:"model_config"`
}

type CleanupResult struct {
	CleanupDone bool `json:"cleanup_done"`
}

// Registration tells where the winning model is registered.
type Registration struct {
	// ModelPackageGroup is the registry label.
	ModelPackageGroup string
	ApprovalStatus    string
	// Bucket receives the evaluation report when AttachMetrics is set.
	Bucket        string
	AttachMetrics bool
}

// Provider performs the platform operations of one model hub. Operations are synchronous: they return
// once the platform accepted (Finetune) or finished (Deploy, DeployFinetuned, Cleanup) the work.
type Provider interface {
	Name() string
	Finetune(ctx context.Context, model config.Model) (FinetuneResult, error)
	// Deploy must not provision anything when the model endpoint already exists.
	Deploy(ctx context.Context, model config.Model) (DeployResult, error)
	DeployFinetuned(ctx context.Context, model config.Model, finetuned FinetuneResult) (DeployResult, error)
	// Register returns the identifier of the registered model package.
	Register(ctx context.Context, winner EvaluationResult, registration Registration) (string, error)
	Cleanup(ctx context.Context, model config.Model) (CleanupResult, error)
	ModelRunner(model config.Model) evaluation.ModelRunner
}
