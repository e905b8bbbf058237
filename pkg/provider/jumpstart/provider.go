// Package jumpstart runs the provider operations for models of the SageMaker JumpStart hub.
package jumpstart

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"

	"github.com/askiada/go-evalpipeline/pkg/config"
	"github.com/askiada/go-evalpipeline/pkg/evaluation"
	"github.com/askiada/go-evalpipeline/pkg/provider"
)

const (
	Name = "jumpstart"

	// registrationInstanceType is the instance the registered model package is described for.
	registrationInstanceType = "ml.m5.xlarge"
	customAttributes         = "accept_eula=true"
	maxNameLength            = 63
	defaultWaitTimeout       = time.Hour
)

// SageMakerAPI is the part of the SageMaker client used by the provider.
type SageMakerAPI interface {
	sagemaker.ListEndpointsAPIClient
	sagemaker.DescribeEndpointAPIClient
	sagemaker.DescribeTrainingJobAPIClient
	CreateModel(ctx context.Context, params *sagemaker.CreateModelInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateModelOutput, error)
	CreateEndpointConfig(ctx context.Context, params *sagemaker.CreateEndpointConfigInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateEndpointConfigOutput, error)
	CreateEndpoint(ctx context.Context, params *sagemaker.CreateEndpointInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateEndpointOutput, error)
	CreateTrainingJob(ctx context.Context, params *sagemaker.CreateTrainingJobInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateTrainingJobOutput, error)
	DescribeModelPackageGroup(ctx context.Context, params *sagemaker.DescribeModelPackageGroupInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeModelPackageGroupOutput, error)
	CreateModelPackageGroup(ctx context.Context, params *sagemaker.CreateModelPackageGroupInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateModelPackageGroupOutput, error)
	CreateModelPackage(ctx context.Context, params *sagemaker.CreateModelPackageInput, optFns ...func(*sagemaker.Options)) (*sagemaker.CreateModelPackageOutput, error)
	DeleteEndpoint(ctx context.Context, params *sagemaker.DeleteEndpointInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DeleteEndpointOutput, error)
	DeleteEndpointConfig(ctx context.Context, params *sagemaker.DeleteEndpointConfigInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DeleteEndpointConfigOutput, error)
}

// ObjectPutter is the part of the S3 client used to upload evaluation reports.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Settings are shared by every model of a run.
type Settings struct {
	RoleArn string
	// InputPath resolves relative fine-tuning data paths.
	InputPath string
	// OutputPath receives the training job outputs.
	OutputPath string
	// WaitTimeout bounds the wait for endpoints without their own timeout, and for training jobs
	// without a stopping condition.
	WaitTimeout time.Duration
	// Now names the created resources. It defaults to time.Now.
	Now func() time.Time
}

type Provider struct {
	client   SageMakerAPI
	uploader ObjectPutter
	catalog  *Catalog
	settings Settings
}

func New(client SageMakerAPI, uploader ObjectPutter, catalog *Catalog, settings Settings) *Provider {
	if settings.WaitTimeout == 0 {
		settings.WaitTimeout = defaultWaitTimeout
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}

	return &Provider{
		client:   client,
		uploader: uploader,
		catalog:  catalog,
		settings: settings,
	}
}

func (p *Provider) Name() string {
	return Name
}

func (p *Provider) ModelRunner(model config.Model) evaluation.ModelRunner {
	return evaluation.ModelRunner{
		Type:             Name,
		EndpointName:     model.EndpointName,
		ModelID:          model.ModelID,
		ModelVersion:     model.ModelVersion,
		Output:           model.EvaluationConfig.Output,
		ContentTemplate:  model.EvaluationConfig.ContentTemplate,
		CustomAttributes: customAttributes,
		PromptTemplate:   model.EvaluationConfig.PromptTemplate,
	}
}

// resourceName builds a unique SageMaker resource name from base and the current time.
func (p *Provider) resourceName(base string) string {
	suffix := "-" + p.settings.Now().UTC().Format("2006-01-02-15-04-05")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, base)
	if len(base)+len(suffix) > maxNameLength {
		base = base[:maxNameLength-len(suffix)]
	}

	return strings.Trim(base, "-") + suffix
}

var _ provider.Provider = (*Provider)(nil)
