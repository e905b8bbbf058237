package sagemakerpipeline

import (
	"bytes"
	"context"
	"strings"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/askiada/go-evalpipeline/internal/s3uri"
	"github.com/askiada/go-evalpipeline/pkg/config"
)

// SageMakerAPI is the part of the SageMaker client used to submit pipelines.
type SageMakerAPI interface {
	DescribePipeline(ctx context.Context, params *sagemaker.DescribePipelineInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribePipelineOutput, error)
	CreatePipeline(ctx context.Context, params *sagemaker.CreatePipelineInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreatePipelineOutput, error)
	UpdatePipeline(ctx context.Context, params *sagemaker.UpdatePipelineInput, optFns ...func(*sagemaker.Options)) (*sagemaker.UpdatePipelineOutput, error)
	StartPipelineExecution(ctx context.Context, params *sagemaker.StartPipelineExecutionInput, optFns ...func(*sagemaker.Options)) (*sagemaker.StartPipelineExecutionOutput, error)
}

// ObjectPutter uploads the configuration read back by the remote steps.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Submitter struct {
	client   SageMakerAPI
	uploader ObjectPutter
	// token returns client request tokens. It defaults to random UUIDs.
	token func() string
}

func NewSubmitter(client SageMakerAPI, uploader ObjectPutter) *Submitter {
	return &Submitter{
		client:   client,
		uploader: uploader,
		token:    func() string { return uuid.NewString() },
	}
}

// ConfigURI returns where UploadConfig stores the configuration of a run.
func ConfigURI(outputPath string) string {
	return s3uri.Join(outputPath, config.DefaultFileName)
}

// UploadConfig stores cfg, defaults applied, under outputPath and returns its URI.
func (s *Submitter) UploadConfig(ctx context.Context, cfg *config.Config, outputPath string) (string, error) {
	uri := ConfigURI(outputPath)
	loc, err := s3uri.Parse(uri)
	if err != nil {
		return "", err
	}

	content, err := cfg.Marshal()
	if err != nil {
		return "", err
	}

	_, err = s.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(loc.Bucket),
		Key:         aws.String(loc.Key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/yaml"),
	})
	if err != nil {
		return "", errors.Wrapf(err, "unable to upload config to %s", uri)
	}

	logrus.WithField("uri", uri).Info("configuration uploaded")

	return uri, nil
}

func (s *Submitter) exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.DescribePipeline(ctx, &sagemaker.DescribePipelineInput{PipelineName: aws.String(name)})
	if err != nil {
		var notFound *types.ResourceNotFound
		if errors.As(err, &notFound) {
			return false, nil
		}

		return false, errors.Wrapf(err, "unable to describe pipeline %s", name)
	}

	return true, nil
}

// Upsert creates the pipeline, or replaces the definition of an existing one, and returns its ARN.
func (s *Submitter) Upsert(ctx context.Context, name, roleArn string, def *Definition) (string, error) {
	body, err := def.JSON()
	if err != nil {
		return "", err
	}

	found, err := s.exists(ctx, name)
	if err != nil {
		return "", err
	}

	log := logrus.WithField("pipeline", name)
	if found {
		out, err := s.client.UpdatePipeline(ctx, &sagemaker.UpdatePipelineInput{
			PipelineName:       aws.String(name),
			PipelineDefinition: aws.String(body),
			RoleArn:            aws.String(roleArn),
		})
		if err != nil {
			return "", errors.Wrapf(err, "unable to update pipeline %s", name)
		}
		log.Info("pipeline updated")

		return aws.ToString(out.PipelineArn), nil
	}

	out, err := s.client.CreatePipeline(ctx, &sagemaker.CreatePipelineInput{
		PipelineName:       aws.String(name),
		PipelineDefinition: aws.String(body),
		RoleArn:            aws.String(roleArn),
		ClientRequestToken: aws.String(s.token()),
	})
	if err != nil {
		return "", errors.Wrapf(err, "unable to create pipeline %s", name)
	}
	log.Info("pipeline created")

	return aws.ToString(out.PipelineArn), nil
}

// displayName keeps letters, digits and single dashes, as execution display names require.
func displayName(name, executionID string) string {
	var b strings.Builder
	dash := false
	for _, r := range name + "-" + executionID {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false

			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	return strings.TrimSuffix(b.String(), "-")
}

// Start starts an execution of the pipeline and returns its ARN.
func (s *Submitter) Start(ctx context.Context, name, executionID string) (string, error) {
	out, err := s.client.StartPipelineExecution(ctx, &sagemaker.StartPipelineExecutionInput{
		PipelineName:                 aws.String(name),
		PipelineExecutionDisplayName: aws.String(displayName(name, executionID)),
		ClientRequestToken:           aws.String(s.token()),
	})
	if err != nil {
		return "", errors.Wrapf(err, "unable to start pipeline %s", name)
	}

	arn := aws.ToString(out.PipelineExecutionArn)
	logrus.WithFields(logrus.Fields{"pipeline": name, "execution": arn}).Info("pipeline execution started")

	return arn, nil
}

// Submit upserts the pipeline rendered from def and starts it.
func (s *Submitter) Submit(ctx context.Context, name string, def *Definition, settings Settings) (string, error) {
	_, err := s.Upsert(ctx, name, settings.RoleArn, def)
	if err != nil {
		return "", err
	}

	return s.Start(ctx, name, settings.ExecutionID)
}
