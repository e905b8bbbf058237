package jumpstart

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/askiada/go-evalpipeline/pkg/config"
	"github.com/askiada/go-evalpipeline/pkg/provider"
)

const (
	variantName        = "AllTraffic"
	trainingWaitMargin = 30 * time.Minute
)

var ErrTrainingNotCompleted = errors.New("training job did not complete")

// endpointStatus reports whether an endpoint called name exists, and its status.
func (p *Provider) endpointStatus(ctx context.Context, name string) (types.EndpointStatus, bool, error) {
	paginator := sagemaker.NewListEndpointsPaginator(p.client, &sagemaker.ListEndpointsInput{
		NameContains: aws.String(name),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", false, errors.Wrap(err, "unable to list endpoints")
		}

		for _, endpoint := range page.Endpoints {
			if aws.ToString(endpoint.EndpointName) == name {
				return endpoint.EndpointStatus, true, nil
			}
		}
	}

	return "", false, nil
}

// existing logs and reports whether the endpoint of model is already there.
func (p *Provider) existing(ctx context.Context, model config.Model) (bool, error) {
	status, ok, err := p.endpointStatus(ctx, model.EndpointName)
	if err != nil || !ok {
		return false, err
	}

	log := logrus.WithFields(logrus.Fields{"endpoint": model.EndpointName, "status": status})
	if status != types.EndpointStatusInService {
		log.Warn("endpoint already exists but is not in service, reusing it")
	} else {
		log.Info("endpoint already exists")
	}

	return true, nil
}

func (p *Provider) Deploy(ctx context.Context, model config.Model) (provider.DeployResult, error) {
	res := provider.DeployResult{ModelDeployed: true, EndpointName: model.EndpointName}

	exists, err := p.existing(ctx, model)
	if err != nil || exists {
		return res, err
	}

	spec, err := p.catalog.Spec(ctx, model.ModelID, model.ModelVersion)
	if err != nil {
		return provider.DeployResult{}, errors.Wrapf(err, "unable to get catalog spec of %s", model.ModelID)
	}

	container := &types.ContainerDefinition{
		Image:       aws.String(spec.HostingImage(model.DeploymentConfig.InstanceType)),
		Environment: environment(spec.HostingEnvVars, model.Environment),
	}
	artifact := spec.HostingArtifact()
	if strings.HasSuffix(artifact, "/") {
		container.ModelDataSource = prefixDataSource(artifact)
	} else {
		container.ModelDataUrl = aws.String(artifact)
	}

	err = p.createEndpoint(ctx, model, container)
	if err != nil {
		return provider.DeployResult{}, err
	}

	return res, nil
}

func (p *Provider) DeployFinetuned(ctx context.Context, model config.Model, finetuned provider.FinetuneResult) (provider.DeployResult, error) {
	res := provider.DeployResult{ModelDeployed: true, EndpointName: model.EndpointName}

	exists, err := p.existing(ctx, model)
	if err != nil || exists {
		return res, err
	}

	log := logrus.WithFields(logrus.Fields{"job": finetuned.TrainingJobName, "model_id": model.ModelID})

	input := &sagemaker.DescribeTrainingJobInput{TrainingJobName: aws.String(finetuned.TrainingJobName)}
	job, err := p.client.DescribeTrainingJob(ctx, input)
	if err != nil {
		return provider.DeployResult{}, errors.Wrapf(err, "unable to describe training job %s", finetuned.TrainingJobName)
	}

	wait := p.trainingWait(job.StoppingCondition)
	log.WithField("timeout", wait).Info("waiting for training job")
	err = sagemaker.NewTrainingJobCompletedOrStoppedWaiter(p.client).Wait(ctx, input, wait)
	if err != nil {
		return provider.DeployResult{}, errors.Wrapf(err, "unable to wait for training job %s", finetuned.TrainingJobName)
	}

	job, err = p.client.DescribeTrainingJob(ctx, input)
	if err != nil {
		return provider.DeployResult{}, errors.Wrapf(err, "unable to describe training job %s", finetuned.TrainingJobName)
	}
	if job.TrainingJobStatus != types.TrainingJobStatusCompleted || job.ModelArtifacts == nil {
		return provider.DeployResult{}, errors.Wrapf(ErrTrainingNotCompleted, "%s is %s: %s",
			finetuned.TrainingJobName, job.TrainingJobStatus, aws.ToString(job.FailureReason))
	}
	log.Info("training job completed")

	spec, err := p.catalog.Spec(ctx, model.ModelID, model.ModelVersion)
	if err != nil {
		return provider.DeployResult{}, errors.Wrapf(err, "unable to get catalog spec of %s", model.ModelID)
	}

	artifacts := aws.ToString(job.ModelArtifacts.S3ModelArtifacts)
	if !strings.HasSuffix(artifacts, "/") {
		artifacts += "/"
	}

	container := &types.ContainerDefinition{
		Image:           aws.String(spec.HostingImage(model.DeploymentConfig.InstanceType)),
		Environment:     environment(spec.HostingEnvVars, model.Environment),
		ModelDataSource: prefixDataSource(artifacts),
	}

	err = p.createEndpoint(ctx, model, container)
	if err != nil {
		return provider.DeployResult{}, err
	}

	return res, nil
}

// trainingWait covers the longest the job may run, spot capacity waits included, plus the time to
// provision and upload.
func (p *Provider) trainingWait(stop *types.StoppingCondition) time.Duration {
	if stop == nil {
		return p.settings.WaitTimeout
	}

	run := time.Duration(aws.ToInt32(stop.MaxRuntimeInSeconds)) * time.Second
	if spot := time.Duration(aws.ToInt32(stop.MaxWaitTimeInSeconds)) * time.Second; spot > run {
		run = spot
	}
	if run == 0 {
		return p.settings.WaitTimeout
	}

	return run + trainingWaitMargin
}

// endpointWait bounds the wait for the endpoint of model to be in service.
func (p *Provider) endpointWait(model config.Model) time.Duration {
	if model.DeploymentConfig.WaitTimeout > 0 {
		return model.DeploymentConfig.WaitTimeout
	}

	return p.settings.WaitTimeout
}

func prefixDataSource(uri string) *types.ModelDataSource {
	return &types.ModelDataSource{
		S3DataSource: &types.S3ModelDataSource{
			S3Uri:             aws.String(uri),
			S3DataType:        types.S3ModelDataTypeS3Prefix,
			CompressionType:   types.ModelCompressionTypeNone,
			ModelAccessConfig: &types.ModelAccessConfig{AcceptEula: aws.Bool(true)},
		},
	}
}

// environment merges the catalog variables with the ones of the model configuration, which win.
func environment(defaults, overrides map[string]string) map[string]string {
	if len(defaults)+len(overrides) == 0 {
		return nil
	}

	res := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		res[k] = v
	}
	for k, v := range overrides {
		res[k] = v
	}

	return res
}

// createEndpoint creates the model, the endpoint configuration and the endpoint, then waits for the
// endpoint to be in service. The endpoint configuration is named after the endpoint.
func (p *Provider) createEndpoint(ctx context.Context, model config.Model, container *types.ContainerDefinition) error {
	log := logrus.WithFields(logrus.Fields{"endpoint": model.EndpointName, "model_id": model.ModelID})

	modelName := p.resourceName(model.EndpointName)
	_, err := p.client.CreateModel(ctx, &sagemaker.CreateModelInput{
		ModelName:        aws.String(modelName),
		ExecutionRoleArn: aws.String(p.settings.RoleArn),
		PrimaryContainer: container,
	})
	if err != nil {
		return errors.Wrapf(err, "unable to create model %s", modelName)
	}

	_, err = p.client.CreateEndpointConfig(ctx, &sagemaker.CreateEndpointConfigInput{
		EndpointConfigName: aws.String(model.EndpointName),
		ProductionVariants: []types.ProductionVariant{{
			VariantName:          aws.String(variantName),
			ModelName:            aws.String(modelName),
			InstanceType:         types.ProductionVariantInstanceType(model.DeploymentConfig.InstanceType),
			InitialInstanceCount: aws.Int32(int32(model.DeploymentConfig.NumInstances)), //nolint:gosec // validated positive
		}},
	})
	if err != nil {
		return errors.Wrapf(err, "unable to create endpoint config %s", model.EndpointName)
	}

	_, err = p.client.CreateEndpoint(ctx, &sagemaker.CreateEndpointInput{
		EndpointName:       aws.String(model.EndpointName),
		EndpointConfigName: aws.String(model.EndpointName),
	})
	if err != nil {
		return errors.Wrapf(err, "unable to create endpoint %s", model.EndpointName)
	}
	log.Info("endpoint creating")

	err = sagemaker.NewEndpointInServiceWaiter(p.client).Wait(ctx, &sagemaker.DescribeEndpointInput{
		EndpointName: aws.String(model.EndpointName),
	}, p.endpointWait(model))
	if err != nil {
		return errors.Wrapf(err, "unable to wait for endpoint %s", model.EndpointName)
	}
	log.Info("endpoint in service")

	return nil
}
