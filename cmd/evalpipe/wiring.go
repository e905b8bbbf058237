package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/pkg/errors"

	"github.com/askiada/go-evalpipeline/pkg/assembler"
	"github.com/askiada/go-evalpipeline/pkg/config"
	"github.com/askiada/go-evalpipeline/pkg/evaluation"
	"github.com/askiada/go-evalpipeline/pkg/provider"
	"github.com/askiada/go-evalpipeline/pkg/provider/jumpstart"
	"github.com/askiada/go-evalpipeline/pkg/steps"
)

const exampleFolder = "llm-evaluation-at-scale-example"

// clients holds the AWS clients of a run.
type clients struct {
	region    string
	s3        *s3.Client
	sagemaker *sagemaker.Client
	sts       *sts.Client
}

func newClients(ctx context.Context) (*clients, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load aws configuration")
	}

	return &clients{
		region:    cfg.Region,
		s3:        s3.NewFromConfig(cfg),
		sagemaker: sagemaker.NewFromConfig(cfg),
		sts:       sts.NewFromConfig(cfg),
	}, nil
}

// defaultInputPath returns s3://sagemaker-<region>-<account>/llm-evaluation-at-scale-example.
func defaultInputPath(region, account string) string {
	return fmt.Sprintf("s3://sagemaker-%s-%s/%s", region, account, exampleFolder)
}

func (c *clients) defaultInputPath(ctx context.Context) (string, error) {
	out, err := c.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", errors.Wrap(err, "unable to find the aws account")
	}

	return defaultInputPath(c.region, aws.ToString(out.Account)), nil
}

// runSettings are resolved once per run, then shared by the assembler and the submitter.
type runSettings struct {
	inputPath   string
	outputPath  string
	executionID string
	roleArn     string
}

func newRunSettings(cfg *config.Config, inputPath, executionID string) runSettings {
	return runSettings{
		inputPath:   inputPath,
		outputPath:  assembler.OutputPath(inputPath, cfg.Pipeline.Name, executionID),
		executionID: executionID,
		roleArn:     cfg.Pipeline.RoleArn,
	}
}

// harness runs the external evaluation process. Remote steps run their pre-execution commands
// themselves, before the step starts.
func harness(cfg *config.Config, remote bool) *evaluation.CommandHarness {
	if remote {
		return evaluation.NewCommandHarness(cfg.Evaluation.Command, nil)
	}

	return evaluation.NewCommandHarness(cfg.Evaluation.Command, cfg.Evaluation.PreExecutionCommands)
}

func providerSettings(cfg *config.Config, settings runSettings) jumpstart.Settings {
	return jumpstart.Settings{
		RoleArn:     settings.roleArn,
		InputPath:   settings.inputPath,
		OutputPath:  settings.outputPath,
		WaitTimeout: cfg.Pipeline.WaitTimeout,
	}
}

func newAssembler(c *clients, cfg *config.Config, settings runSettings, remote bool) (*assembler.Assembler, error) {
	catalog := jumpstart.NewCatalog(c.s3, jumpstart.BucketForRegion(c.region))
	js := jumpstart.New(c.sagemaker, c.s3, catalog, providerSettings(cfg, settings))

	registry, err := provider.NewRegistry(js)
	if err != nil {
		return nil, err
	}

	return assembler.New(
		cfg,
		registry,
		steps.NewPreprocessor(c.s3, cfg.Dataset, 0),
		steps.NewEvaluator(harness(cfg, remote), cfg.Dataset, cfg.Algorithms),
		assembler.Paths{Input: settings.inputPath, Output: settings.outputPath},
	), nil
}
