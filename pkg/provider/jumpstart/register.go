package jumpstart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/askiada/go-evalpipeline/internal/s3uri"
	"github.com/askiada/go-evalpipeline/pkg/provider"
)

const jsonContentType = "application/json"

// ensureModelPackageGroup creates the group unless it exists.
func (p *Provider) ensureModelPackageGroup(ctx context.Context, group string) error {
	_, err := p.client.DescribeModelPackageGroup(ctx, &sagemaker.DescribeModelPackageGroupInput{
		ModelPackageGroupName: aws.String(group),
	})
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "ValidationException" {
		return errors.Wrapf(err, "unable to describe model package group %s", group)
	}

	_, err = p.client.CreateModelPackageGroup(ctx, &sagemaker.CreateModelPackageGroupInput{
		ModelPackageGroupName:        aws.String(group),
		ModelPackageGroupDescription: aws.String("Best models selected by evaluation pipelines"),
	})
	if err != nil {
		return errors.Wrapf(err, "unable to create model package group %s", group)
	}
	logrus.WithField("group", group).Info("model package group created")

	return nil
}

// uploadReport stores the evaluation outputs of the winner under a unique name and returns their uri.
func (p *Provider) uploadReport(ctx context.Context, winner provider.EvaluationResult, reg provider.Registration) (string, error) {
	content, err := json.Marshal(winner.EvalResult)
	if err != nil {
		return "", errors.Wrap(err, "unable to encode evaluation report")
	}

	loc := s3uri.Location{
		Bucket: reg.Bucket,
		Key:    fmt.Sprintf("%s/evaluation-report/%s.json", reg.ModelPackageGroup, uuid.NewString()),
	}
	_, err = p.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(loc.Bucket),
		Key:         aws.String(loc.Key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(jsonContentType),
	})
	if err != nil {
		return "", errors.Wrapf(err, "unable to upload evaluation report to %s", loc)
	}

	return loc.String(), nil
}

// Register creates a model package for the base model of the winner in the registry.
func (p *Provider) Register(ctx context.Context, winner provider.EvaluationResult, reg provider.Registration) (string, error) {
	model := winner.ModelConfig
	log := logrus.WithFields(logrus.Fields{"model_id": model.ModelID, "group": reg.ModelPackageGroup})

	spec, err := p.catalog.Spec(ctx, model.ModelID, model.ModelVersion)
	if err != nil {
		return "", errors.Wrapf(err, "unable to get catalog spec of %s", model.ModelID)
	}

	err = p.ensureModelPackageGroup(ctx, reg.ModelPackageGroup)
	if err != nil {
		return "", err
	}

	input := &sagemaker.CreateModelPackageInput{
		ModelPackageGroupName:   aws.String(reg.ModelPackageGroup),
		ModelPackageDescription: aws.String(fmt.Sprintf("%s %s selected by evaluation", model.ModelID, model.ModelVersion)),
		ModelApprovalStatus:     types.ModelApprovalStatus(reg.ApprovalStatus),
		InferenceSpecification: &types.InferenceSpecification{
			Containers: []types.ModelPackageContainerDefinition{{
				Image:        aws.String(spec.HostingImage(registrationInstanceType)),
				ModelDataUrl: aws.String(spec.HostingArtifact()),
			}},
			SupportedContentTypes:      []string{jsonContentType},
			SupportedResponseMIMETypes: []string{jsonContentType},
			SupportedRealtimeInferenceInstanceTypes: []types.ProductionVariantInstanceType{
				types.ProductionVariantInstanceType(registrationInstanceType),
			},
		},
		ClientToken: aws.String(uuid.NewString()),
	}

	if reg.AttachMetrics {
		uri, err := p.uploadReport(ctx, winner, reg)
		if err != nil {
			return "", err
		}
		input.ModelMetrics = &types.ModelMetrics{
			ModelQuality: &types.ModelQuality{
				Statistics: &types.MetricsSource{
					ContentType: aws.String(jsonContentType),
					S3Uri:       aws.String(uri),
				},
			},
		}
		log = log.WithField("report", uri)
	}

	out, err := p.client.CreateModelPackage(ctx, input)
	if err != nil {
		return "", errors.Wrapf(err, "unable to create model package in %s", reg.ModelPackageGroup)
	}

	arn := aws.ToString(out.ModelPackageArn)
	log.WithField("arn", arn).Info("model package registered")

	return arn, nil
}
