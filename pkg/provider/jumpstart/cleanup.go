package jumpstart

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/askiada/go-evalpipeline/pkg/config"
	"github.com/askiada/go-evalpipeline/pkg/provider"
)

// Cleanup deletes the endpoint of model and the endpoint configuration of the same name.
func (p *Provider) Cleanup(ctx context.Context, model config.Model) (provider.CleanupResult, error) {
	_, err := p.client.DeleteEndpoint(ctx, &sagemaker.DeleteEndpointInput{
		EndpointName: aws.String(model.EndpointName),
	})
	if err != nil {
		return provider.CleanupResult{}, errors.Wrapf(err, "unable to delete endpoint %s", model.EndpointName)
	}

	_, err = p.client.DeleteEndpointConfig(ctx, &sagemaker.DeleteEndpointConfigInput{
		EndpointConfigName: aws.String(model.EndpointName),
	})
	if err != nil {
		return provider.CleanupResult{}, errors.Wrapf(err, "unable to delete endpoint config %s", model.EndpointName)
	}

	logrus.WithField("endpoint", model.EndpointName).Info("endpoint deleted")

	return provider.CleanupResult{CleanupDone: true}, nil
}
