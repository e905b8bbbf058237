package steps_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-evalpipeline/pkg/config"
	"github.com/askiada/go-evalpipeline/pkg/evaluation"
	"github.com/askiada/go-evalpipeline/pkg/provider"
	"github.com/askiada/go-evalpipeline/pkg/steps"
)

type recordingHarness struct {
	requests []evaluation.Request
	outputs  []evaluation.Output
	err      error
}

func (r *recordingHarness) Evaluate(_ context.Context, req evaluation.Request) ([]evaluation.Output, error) {
	r.requests = append(r.requests, req)

	return r.outputs, r.err
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	outputs := []evaluation.Output{{EvalName: "factual_knowledge", DatasetScores: []evaluation.Score{{Name: "factual_knowledge", Value: 0.5}}}}
	algorithms := []config.Algorithm{{Algorithm: "FactualKnowledge", TargetOutputDelimiter: "<OR>"}}
	model := config.Model{Name: "falcon", ModelID: "falcon-7b", EndpointName: "endpoint"}
	runner := evaluation.ModelRunner{Type: "jumpstart", EndpointName: "endpoint"}

	tcs := map[string]struct {
		deployed   provider.DeployResult
		harnessErr error
		wantErr    error
	}{
		"deployed":     {deployed: provider.DeployResult{ModelDeployed: true}},
		"not deployed": {wantErr: steps.ErrNotDeployed},
		"harness error": {
			deployed:   provider.DeployResult{ModelDeployed: true},
			harnessErr: evaluation.ErrHarness,
			wantErr:    evaluation.ErrHarness,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			harness := &recordingHarness{outputs: outputs, err: tc.harnessErr}
			evaluator := steps.NewEvaluator(harness, dataset(), algorithms)

			got, err := evaluator.Evaluate(context.Background(), model, runner, "s3://bucket/out", tc.deployed)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)

				return
			}
			require.NoError(t, err)
			assert.Equal(t, provider.EvaluationResult{EvalResult: outputs, ModelConfig: model}, got)

			require.Len(t, harness.requests, 1)
			req := harness.requests[0]
			assert.Equal(t, runner, req.ModelRunner)
			assert.Equal(t, evaluation.Dataset{
				Name:                 "trex_sample",
				URI:                  "s3://bucket/out/trex_sample.jsonl",
				MimeType:             config.DefaultDatasetMimeType,
				ModelInputLocation:   "question",
				TargetOutputLocation: "answers",
			}, req.Dataset)
			assert.Equal(t, algorithms, req.Algorithms)
			assert.Equal(t, "s3://bucket/out/evaluation/falcon", req.OutputPath)
		})
	}
}
