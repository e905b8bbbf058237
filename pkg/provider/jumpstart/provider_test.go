package jumpstart_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-evalpipeline/pkg/config"
	"github.com/askiada/go-evalpipeline/pkg/evaluation"
	"github.com/askiada/go-evalpipeline/pkg/provider"
	"github.com/askiada/go-evalpipeline/pkg/provider/jumpstart"
)

func llamaModel() config.Model {
	return config.Model{
		Name:             "llama2-7b",
		Provider:         jumpstart.Name,
		ModelID:          "meta-textgeneration-llama-2-7b",
		ModelVersion:     "2.*",
		EndpointName:     "llm-eval-llama2-7b",
		DeploymentConfig: config.Deployment{InstanceType: "ml.g5.2xlarge", NumInstances: 2},
		EvaluationConfig: config.ModelEvaluation{Output: "[0].generated_text", ContentTemplate: `{"inputs": $prompt}`},
		Environment:      map[string]string{"SM_NUM_GPUS": "4"},
		Finetuning: &config.Finetuning{
			TrainDataPath:      "finetuning/train",
			ValidationDataPath: "s3://other/validation",
			Parameters: config.FinetuningParameters{
				Epoch: 2, MaxInputLength: 1024, InstructionTuned: true,
				InstanceType: "ml.g5.12xlarge", NumInstances: 1,
			},
		},
		CleanupEndpoint: true,
	}
}

func TestDeploy(t *testing.T) {
	t.Parallel()

	prov, sm, _ := newProvider(t)
	model := llamaModel()

	res, err := prov.Deploy(context.Background(), model)
	require.NoError(t, err)
	assert.Equal(t, provider.DeployResult{ModelDeployed: true, EndpointName: "llm-eval-llama2-7b"}, res)

	require.Len(t, sm.models, 1)
	created := sm.models[0]
	assert.Equal(t, "llm-eval-llama2-7b-2024-03-01-10-20-30", aws.ToString(created.ModelName))
	assert.Equal(t, "g5-image:2.1.0", aws.ToString(created.PrimaryContainer.Image))
	assert.Equal(t, map[string]string{"SM_NUM_GPUS": "4", "HF_MODEL_ID": "/opt/ml/model"}, created.PrimaryContainer.Environment)
	require.NotNil(t, created.PrimaryContainer.ModelDataSource)
	assert.Equal(t, "s3://"+catalogBucket+"/artifacts/llama/2.1.0/", aws.ToString(created.PrimaryContainer.ModelDataSource.S3DataSource.S3Uri))
	assert.Equal(t, types.ModelCompressionTypeNone, created.PrimaryContainer.ModelDataSource.S3DataSource.CompressionType)

	require.Len(t, sm.endpointConfigs, 1)
	variant := sm.endpointConfigs[0].ProductionVariants[0]
	assert.Equal(t, "llm-eval-llama2-7b", aws.ToString(sm.endpointConfigs[0].EndpointConfigName))
	assert.Equal(t, types.ProductionVariantInstanceType("ml.g5.2xlarge"), variant.InstanceType)
	assert.Equal(t, int32(2), aws.ToInt32(variant.InitialInstanceCount))
	assert.Equal(t, aws.ToString(created.ModelName), aws.ToString(variant.ModelName))

	require.Len(t, sm.createdEndpoints, 1)
}

func TestDeployIdempotent(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		status types.EndpointStatus
	}{
		"in service": {status: types.EndpointStatusInService},
		"updating":   {status: types.EndpointStatusUpdating},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			prov, sm, _ := newProvider(t)
			model := llamaModel()
			sm.endpoints["another-endpoint"] = types.EndpointStatusInService
			sm.endpoints[model.EndpointName] = tc.status

			res, err := prov.Deploy(context.Background(), model)
			require.NoError(t, err)
			assert.True(t, res.ModelDeployed)

			res, err = prov.DeployFinetuned(context.Background(), model, provider.FinetuneResult{TrainingJobName: "job"})
			require.NoError(t, err)
			assert.True(t, res.ModelDeployed)

			assert.Empty(t, sm.models)
			assert.Empty(t, sm.createdEndpoints)
		})
	}
}

func TestDeployTwiceProvisionsOnce(t *testing.T) {
	t.Parallel()

	prov, sm, _ := newProvider(t)
	model := llamaModel()

	for range 2 {
		res, err := prov.Deploy(context.Background(), model)
		require.NoError(t, err)
		assert.True(t, res.ModelDeployed)
	}

	assert.Len(t, sm.createdEndpoints, 1)
	assert.Greater(t, sm.listPages, 2, "endpoint listing is paginated")
}

func TestDeployPrepackedArtifact(t *testing.T) {
	t.Parallel()

	prov, sm, _ := newProvider(t)
	model := config.Model{
		ModelID:          "huggingface-llm-falcon-7b-instruct-bf16",
		ModelVersion:     "*",
		EndpointName:     "falcon",
		DeploymentConfig: config.Deployment{InstanceType: "ml.g5.2xlarge", NumInstances: 1},
	}

	_, err := prov.Deploy(context.Background(), model)
	require.NoError(t, err)

	require.Len(t, sm.models, 1)
	assert.Nil(t, sm.models[0].PrimaryContainer.ModelDataSource)
	assert.Nil(t, sm.models[0].PrimaryContainer.Environment)
	assert.Equal(t, "s3://"+catalogBucket+"/artifacts/falcon/model.tar.gz", aws.ToString(sm.models[0].PrimaryContainer.ModelDataUrl))
	assert.Equal(t, "falcon-image", aws.ToString(sm.models[0].PrimaryContainer.Image))
}

func TestDeployUnknownModel(t *testing.T) {
	t.Parallel()

	prov, sm, _ := newProvider(t)
	model := llamaModel()
	model.ModelID = "unknown"

	_, err := prov.Deploy(context.Background(), model)
	require.ErrorIs(t, err, jumpstart.ErrModelNotFound)
	assert.Empty(t, sm.models)
}

func TestFinetune(t *testing.T) {
	t.Parallel()

	prov, sm, _ := newProvider(t)

	res, err := prov.Finetune(context.Background(), llamaModel())
	require.NoError(t, err)
	assert.Equal(t, "llama2-7b-2024-03-01-10-20-30", res.TrainingJobName)

	require.Len(t, sm.trainingJobs, 1)
	job := sm.trainingJobs[0]
	assert.Equal(t, "training-image:2.1.0", aws.ToString(job.AlgorithmSpecification.TrainingImage))
	assert.Equal(t, map[string]string{
		"epoch":                      "2",
		"max_input_length":           "1024",
		"instruction_tuned":          "True",
		"chat_dataset":               "False",
		"sagemaker_program":          "transfer_learning.py",
		"sagemaker_submit_directory": "s3://" + catalogBucket + "/scripts/llama/sourcedir.tar.gz",
	}, job.HyperParameters)

	channels := map[string]string{}
	for _, channel := range job.InputDataConfig {
		channels[aws.ToString(channel.ChannelName)] = aws.ToString(channel.DataSource.S3DataSource.S3Uri)
	}
	if diff := cmp.Diff(map[string]string{
		"training":   "s3://bucket/input/finetuning/train",
		"validation": "s3://other/validation",
		"model":      "s3://" + catalogBucket + "/training/llama/2.1.0/",
	}, channels); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "s3://bucket/output/finetune/llama2-7b", aws.ToString(job.OutputDataConfig.S3OutputPath))
	assert.Equal(t, types.OutputCompressionTypeNone, job.OutputDataConfig.CompressionType)
	assert.Equal(t, types.TrainingInstanceType("ml.g5.12xlarge"), job.ResourceConfig.InstanceType)
	assert.Equal(t, map[string]string{"accept_eula": "true"}, job.Environment)
	assert.Equal(t, int32(5*24*60*60), aws.ToInt32(job.StoppingCondition.MaxRuntimeInSeconds))
}

func TestFinetuneMaxRuntime(t *testing.T) {
	t.Parallel()

	prov, sm, _ := newProvider(t)
	model := llamaModel()
	model.Finetuning.Parameters.MaxRuntime = 6 * time.Hour

	_, err := prov.Finetune(context.Background(), model)
	require.NoError(t, err)

	require.Len(t, sm.trainingJobs, 1)
	assert.Equal(t, int32(6*60*60), aws.ToInt32(sm.trainingJobs[0].StoppingCondition.MaxRuntimeInSeconds))
}

func TestFinetuneErrors(t *testing.T) {
	t.Parallel()

	prov, _, _ := newProvider(t)

	model := llamaModel()
	model.Finetuning = nil
	_, err := prov.Finetune(context.Background(), model)
	require.ErrorIs(t, err, jumpstart.ErrNotFinetuned)

	model = llamaModel()
	model.ModelID = "huggingface-llm-falcon-7b-instruct-bf16"
	model.ModelVersion = "*"
	_, err = prov.Finetune(context.Background(), model)
	require.ErrorIs(t, err, jumpstart.ErrTrainingNotSupported)
}

func TestDeployFinetuned(t *testing.T) {
	t.Parallel()

	prov, sm, _ := newProvider(t)

	res, err := prov.DeployFinetuned(context.Background(), llamaModel(), provider.FinetuneResult{TrainingJobName: "job-1"})
	require.NoError(t, err)
	assert.True(t, res.ModelDeployed)

	require.Len(t, sm.models, 1)
	source := sm.models[0].PrimaryContainer.ModelDataSource.S3DataSource
	assert.Equal(t, "s3://bucket/output/finetune/job-1/output/model/", aws.ToString(source.S3Uri))
	assert.Equal(t, types.S3ModelDataTypeS3Prefix, source.S3DataType)
	assert.True(t, aws.ToBool(source.ModelAccessConfig.AcceptEula))
	require.Len(t, sm.createdEndpoints, 1)
}

func TestDeployFinetunedStopped(t *testing.T) {
	t.Parallel()

	prov, sm, _ := newProvider(t)
	sm.trainingStatus = types.TrainingJobStatusStopped

	_, err := prov.DeployFinetuned(context.Background(), llamaModel(), provider.FinetuneResult{TrainingJobName: "job-1"})
	require.ErrorIs(t, err, jumpstart.ErrTrainingNotCompleted)
	assert.Empty(t, sm.models)
}

func TestRegister(t *testing.T) {
	t.Parallel()

	winner := provider.EvaluationResult{
		EvalResult: []evaluation.Output{{
			EvalName:      "factual_knowledge",
			DatasetScores: []evaluation.Score{{Name: "factual_knowledge", Value: 0.8}},
		}},
		ModelConfig: llamaModel(),
	}

	tcs := map[string]struct {
		groupExists   bool
		attachMetrics bool
	}{
		"new group":          {},
		"existing group":     {groupExists: true},
		"with metric report": {groupExists: true, attachMetrics: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			prov, sm, s3c := newProvider(t)
			sm.groupExists = tc.groupExists

			arn, err := prov.Register(context.Background(), winner, provider.Registration{
				ModelPackageGroup: config.DefaultModelPackageGroup,
				ApprovalStatus:    config.DefaultApprovalStatus,
				Bucket:            "bucket",
				AttachMetrics:     tc.attachMetrics,
			})
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(arn, "model-package/FMEvaluationBestModel/1"))

			if tc.groupExists {
				assert.Empty(t, sm.groups)
			} else {
				require.Len(t, sm.groups, 1)
			}

			require.Len(t, sm.packages, 1)
			pkg := sm.packages[0]
			assert.Equal(t, types.ModelApprovalStatusPendingManualApproval, pkg.ModelApprovalStatus)
			assert.Equal(t, "hosting-image:2.1.0", aws.ToString(pkg.InferenceSpecification.Containers[0].Image))

			if !tc.attachMetrics {
				assert.Nil(t, pkg.ModelMetrics)

				return
			}

			uri := aws.ToString(pkg.ModelMetrics.ModelQuality.Statistics.S3Uri)
			assert.True(t, strings.HasPrefix(uri, "s3://bucket/FMEvaluationBestModel/evaluation-report/"))

			content, ok := s3c.objects[strings.TrimPrefix(uri, "s3://")]
			require.True(t, ok)
			var report []evaluation.Output
			require.NoError(t, json.Unmarshal(content, &report))
			assert.Equal(t, winner.EvalResult, report)
		})
	}
}

func TestCleanup(t *testing.T) {
	t.Parallel()

	prov, sm, _ := newProvider(t)
	sm.endpoints["llm-eval-llama2-7b"] = types.EndpointStatusInService

	res, err := prov.Cleanup(context.Background(), llamaModel())
	require.NoError(t, err)
	assert.True(t, res.CleanupDone)
	assert.Equal(t, []string{"endpoint/llm-eval-llama2-7b", "endpoint-config/llm-eval-llama2-7b"}, sm.deleted)
}

func TestModelRunner(t *testing.T) {
	t.Parallel()

	prov, _, _ := newProvider(t)
	model := llamaModel()
	model.EvaluationConfig.PromptTemplate = "[INST] $model_input [/INST]"

	assert.Equal(t, evaluation.ModelRunner{
		Type:             "jumpstart",
		EndpointName:     "llm-eval-llama2-7b",
		ModelID:          "meta-textgeneration-llama-2-7b",
		ModelVersion:     "2.*",
		Output:           "[0].generated_text",
		ContentTemplate:  `{"inputs": $prompt}`,
		CustomAttributes: "accept_eula=true",
		PromptTemplate:   "[INST] $model_input [/INST]",
	}, prov.ModelRunner(model))
	assert.Equal(t, jumpstart.Name, prov.Name())
}
