package jumpstart

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/askiada/go-evalpipeline/internal/s3uri"
	"github.com/askiada/go-evalpipeline/pkg/config"
	"github.com/askiada/go-evalpipeline/pkg/provider"
)

const (
	trainingEntryPoint   = "transfer_learning.py"
	trainingVolumeSizeGB = 256
	maxTrainingRuntime   = 5 * 24 * time.Hour
)

var (
	ErrNotFinetuned         = errors.New("model has no finetuning configuration")
	ErrTrainingNotSupported = errors.New("model does not support training")
)

// maxRuntime is the stopping condition of the training job of a model.
func maxRuntime(params config.FinetuningParameters) time.Duration {
	if params.MaxRuntime > 0 {
		return params.MaxRuntime
	}

	return maxTrainingRuntime
}

func pythonBool(b bool) string {
	if b {
		return "True"
	}

	return "False"
}

func s3Channel(name, uri string) types.Channel {
	return types.Channel{
		ChannelName: aws.String(name),
		DataSource: &types.DataSource{
			S3DataSource: &types.S3DataSource{
				S3DataType:             types.S3DataTypeS3Prefix,
				S3Uri:                  aws.String(uri),
				S3DataDistributionType: types.S3DataDistributionFullyReplicated,
			},
		},
	}
}

// Finetune starts a training job and returns as soon as SageMaker accepted it.
func (p *Provider) Finetune(ctx context.Context, model config.Model) (provider.FinetuneResult, error) {
	if !model.IsFinetuning() {
		return provider.FinetuneResult{}, errors.Wrap(ErrNotFinetuned, model.StepName())
	}

	spec, err := p.catalog.Spec(ctx, model.ModelID, model.ModelVersion)
	if err != nil {
		return provider.FinetuneResult{}, errors.Wrapf(err, "unable to get catalog spec of %s", model.ModelID)
	}
	if !spec.TrainingSupported {
		return provider.FinetuneResult{}, errors.Wrap(ErrTrainingNotSupported, model.ModelID)
	}

	ft := model.Finetuning
	jobName := p.resourceName(model.StepName())

	_, err = p.client.CreateTrainingJob(ctx, &sagemaker.CreateTrainingJobInput{
		TrainingJobName: aws.String(jobName),
		RoleArn:         aws.String(p.settings.RoleArn),
		AlgorithmSpecification: &types.AlgorithmSpecification{
			TrainingImage:     aws.String(spec.TrainingEcrURI),
			TrainingInputMode: types.TrainingInputModeFile,
		},
		HyperParameters: map[string]string{
			"epoch":                      strconv.Itoa(ft.Parameters.Epoch),
			"max_input_length":           strconv.Itoa(ft.Parameters.MaxInputLength),
			"instruction_tuned":          pythonBool(ft.Parameters.InstructionTuned),
			"chat_dataset":               pythonBool(ft.Parameters.ChatDataset),
			"sagemaker_program":          trainingEntryPoint,
			"sagemaker_submit_directory": spec.TrainingScript(),
		},
		InputDataConfig: []types.Channel{
			s3Channel("training", s3uri.Resolve(p.settings.InputPath, ft.TrainDataPath)),
			s3Channel("validation", s3uri.Resolve(p.settings.InputPath, ft.ValidationDataPath)),
			s3Channel("model", spec.TrainingArtifact()),
		},
		OutputDataConfig: &types.OutputDataConfig{
			S3OutputPath:    aws.String(s3uri.Join(p.settings.OutputPath, "finetune", model.StepName())),
			CompressionType: types.OutputCompressionTypeNone,
		},
		ResourceConfig: &types.ResourceConfig{
			InstanceType:   types.TrainingInstanceType(ft.Parameters.InstanceType),
			InstanceCount:  aws.Int32(int32(ft.Parameters.NumInstances)), //nolint:gosec // validated positive
			VolumeSizeInGB: aws.Int32(trainingVolumeSizeGB),
		},
		StoppingCondition: &types.StoppingCondition{
			MaxRuntimeInSeconds: aws.Int32(int32(maxRuntime(ft.Parameters).Seconds())),
		},
		Environment: map[string]string{"accept_eula": "true"},
	})
	if err != nil {
		return provider.FinetuneResult{}, errors.Wrapf(err, "unable to create training job %s", jobName)
	}

	logrus.WithFields(logrus.Fields{"job": jobName, "model_id": model.ModelID}).Info("training job created")

	return provider.FinetuneResult{TrainingJobName: jobName}, nil
}
