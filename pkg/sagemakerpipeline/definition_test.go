package sagemakerpipeline_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-evalpipeline/pkg/pipeline"
	"github.com/askiada/go-evalpipeline/pkg/sagemakerpipeline"
)

func settings() sagemakerpipeline.Settings {
	return sagemakerpipeline.Settings{
		ImageURI:    "123456789012.dkr.ecr.us-east-1.amazonaws.com/evalpipe:latest",
		RoleArn:     "arn:aws:iam::123456789012:role/pipeline",
		ConfigURI:   "s3://bucket/output/pipeline_config.yaml",
		InputPath:   "s3://bucket/input",
		OutputPath:  "s3://bucket/output",
		ExecutionID: "2024_03_01_10_20_30",
	}
}

func newDefinition(t *testing.T) *pipeline.Definition {
	t.Helper()

	pipe, err := pipeline.New("evaluation")
	require.NoError(t, err)

	preprocess, err := pipeline.AddRootStep(pipe, "preprocess", func(context.Context) (string, error) {
		return "", nil
	})
	require.NoError(t, err)
	deploy, err := pipeline.AddRootStep(pipe, "deploy_a", func(context.Context) (bool, error) {
		return true, nil
	}, pipeline.StepInstanceType("ml.m5.large"))
	require.NoError(t, err)
	evaluation, err := pipeline.AddStep2(pipe, "evaluation_a", preprocess, deploy, func(context.Context, string, bool) (float64, error) {
		return 0, nil
	}, pipeline.StepKeepAlive(1200*time.Second), pipeline.StepPreExecutionCommands("pip install fmeval==0.2.0"))
	require.NoError(t, err)
	cleanup, err := pipeline.AddRootStep(pipe, "cleanup_a", func(context.Context) (bool, error) {
		return true, nil
	})
	require.NoError(t, err)
	require.NoError(t, pipeline.DependsOn(pipe, cleanup, evaluation))

	def, err := pipe.Definition()
	require.NoError(t, err)

	return def
}

func TestRender(t *testing.T) {
	t.Parallel()

	def, err := sagemakerpipeline.Render(newDefinition(t), settings())
	require.NoError(t, err)

	assert.Equal(t, "2020-12-01", def.Version)
	require.Len(t, def.Steps, 4)

	steps := map[string]sagemakerpipeline.Step{}
	for _, step := range def.Steps {
		assert.Equal(t, "Training", step.Type)
		steps[step.Name] = step
	}

	assert.Empty(t, steps["preprocess"].DependsOn)
	assert.ElementsMatch(t, []string{"preprocess", "deploy_a"}, steps["evaluation_a"].DependsOn)
	assert.Equal(t, []string{"evaluation_a"}, steps["cleanup_a"].DependsOn)

	evaluation := steps["evaluation_a"].Arguments
	want := sagemakerpipeline.TrainingArguments{
		AlgorithmSpecification: sagemakerpipeline.AlgorithmSpecification{
			TrainingImage:       "123456789012.dkr.ecr.us-east-1.amazonaws.com/evalpipe:latest",
			TrainingInputMode:   "File",
			ContainerEntrypoint: []string{"evalpipe"},
			ContainerArguments: []string{
				"step", "evaluation_a",
				"--config-uri", "s3://bucket/output/pipeline_config.yaml",
				"--input-data-path", "s3://bucket/input",
				"--execution-id", "2024_03_01_10_20_30",
				"--pre-exec", "pip install fmeval==0.2.0",
			},
		},
		OutputDataConfig:  sagemakerpipeline.OutputDataConfig{S3OutputPath: "s3://bucket/output/jobs/evaluation_a"},
		StoppingCondition: sagemakerpipeline.StoppingCondition{MaxRuntimeInSeconds: 86400},
		ResourceConfig: sagemakerpipeline.ResourceConfig{
			InstanceCount:            1,
			InstanceType:             "ml.m5.xlarge",
			VolumeSizeInGB:           30,
			KeepAlivePeriodInSeconds: 1200,
		},
		RoleArn: "arn:aws:iam::123456789012:role/pipeline",
	}
	if diff := cmp.Diff(want, evaluation); diff != "" {
		t.Errorf("evaluation arguments mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "ml.m5.large", steps["deploy_a"].Arguments.ResourceConfig.InstanceType)
	assert.Zero(t, steps["deploy_a"].Arguments.ResourceConfig.KeepAlivePeriodInSeconds)
}

func TestRenderEveryParentIsADependency(t *testing.T) {
	t.Parallel()

	graph := newDefinition(t)
	def, err := sagemakerpipeline.Render(graph, settings())
	require.NoError(t, err)

	dependsOn := map[string][]string{}
	for _, step := range def.Steps {
		dependsOn[step.Name] = step.DependsOn
	}
	for _, e := range graph.Edges {
		assert.Contains(t, dependsOn[e.To], e.From, "%s -> %s (%s)", e.From, e.To, e.Kind)
	}
}

func TestRenderErrors(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		update  func(s *sagemakerpipeline.Settings)
		wantErr error
	}{
		"missing image": {
			update:  func(s *sagemakerpipeline.Settings) { s.ImageURI = "" },
			wantErr: sagemakerpipeline.ErrImageMustBeSet,
		},
		"missing role": {
			update:  func(s *sagemakerpipeline.Settings) { s.RoleArn = "" },
			wantErr: sagemakerpipeline.ErrRoleMustBeSet,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := settings()
			tc.update(&s)
			_, err := sagemakerpipeline.Render(newDefinition(t), s)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestDefinitionJSON(t *testing.T) {
	t.Parallel()

	def, err := sagemakerpipeline.Render(newDefinition(t), settings())
	require.NoError(t, err)

	body, err := def.JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Equal(t, "2020-12-01", decoded["Version"])
	assert.Contains(t, body, `"KeepAlivePeriodInSeconds":1200`)
	assert.NotContains(t, body, `"DependsOn":null`)
}
