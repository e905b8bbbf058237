package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/askiada/go-evalpipeline/pkg/assembler"
	"github.com/askiada/go-evalpipeline/pkg/config"
	"github.com/askiada/go-evalpipeline/pkg/pipeline"
	"github.com/askiada/go-evalpipeline/pkg/pipeline/drawer"
	"github.com/askiada/go-evalpipeline/pkg/pipeline/measure"
	"github.com/askiada/go-evalpipeline/pkg/pipeline/model"
	"github.com/askiada/go-evalpipeline/pkg/sagemakerpipeline"
)

const (
	runnerSageMaker = "sagemaker"
	runnerLocal     = "local"
	logLevelEnv     = "LOG_LEVEL"
)

var ErrUnknownRunner = errors.New("unknown runner")

var (
	configPath    string
	inputDataPath string
	roleArn       string
	runner        string
	dryRun        bool
	graphPath     string
	logLevel      string
)

func init() {
	addSharedFlags(rootCmd.PersistentFlags())

	rootCmd.Flags().StringVar(&configPath, "config", config.DefaultFileName, "Path to the pipeline configuration file.")
	rootCmd.Flags().StringVar(&roleArn, "role-arn", "", "Execution role of the pipeline and its jobs. Overrides pipeline.role_arn.")
	rootCmd.Flags().StringVar(&runner, "runner", runnerSageMaker, "Where steps run: sagemaker or local.")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Assemble the pipeline and print its definition without running it.")
	rootCmd.Flags().StringVar(&graphPath, "graph", "", "Write the step graph to this DOT file.")
}

// addSharedFlags registers the flags of both the submission and the step commands.
func addSharedFlags(flags *pflag.FlagSet) {
	flags.StringVar(&logLevel, "log-level", envOr(logLevelEnv, "info"), "Log level (debug, info, warn, error).")
	flags.StringVar(&inputDataPath, "input-data-path", "", "S3 prefix holding the input data. Defaults to s3://sagemaker-<region>-<account>/"+exampleFolder+".")
}

func envOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}

	return fallback
}

var rootCmd = &cobra.Command{
	Use:   "evalpipe",
	Short: "Evaluates candidate models and registers the best one.",
	Long: `evalpipe reads a pipeline configuration, deploys every candidate model (fine-tuning it first
when asked), evaluates the endpoints on the configured dataset, registers the best model in the
SageMaker model registry and deletes the temporary endpoints.

The pipeline is submitted to SageMaker Pipelines by default. --runner local runs every step in this
process instead, and --dry-run only prints what would run.`,
	PersistentPreRunE: setupLogging,
	RunE:              runRootCmd,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func setupLogging(_ *cobra.Command, _ []string) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return errors.Wrap(err, "invalid --log-level")
	}
	logrus.SetLevel(level)

	return nil
}

func runRootCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if runner != runnerSageMaker && runner != runnerLocal {
		return errors.Wrapf(ErrUnknownRunner, "%q, use %s or %s", runner, runnerSageMaker, runnerLocal)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if roleArn != "" {
		cfg.Pipeline.RoleArn = roleArn
	}

	c, err := newClients(ctx)
	if err != nil {
		return err
	}

	input := inputDataPath
	if input == "" {
		input, err = c.defaultInputPath(ctx)
		if err != nil {
			return err
		}
	}

	settings := newRunSettings(cfg, input, assembler.ExecutionID(time.Now().UTC()))
	log := logrus.WithFields(logrus.Fields{
		"pipeline":  cfg.Pipeline.Name,
		"execution": settings.executionID,
		"output":    settings.outputPath,
	})

	asm, err := newAssembler(c, cfg, settings, runner == runnerSageMaker)
	if err != nil {
		return err
	}

	msr := measure.NewDefaultMeasure()
	opts := []model.PipelineOption{measure.PipelineMeasure(msr)}
	if graphPath != "" {
		opts = append(opts, drawer.PipelineDrawer(drawer.NewFileDrawer(graphPath), msr))
	}

	pipe, err := asm.Build(opts...)
	if err != nil {
		return err
	}

	switch {
	case dryRun:
		log.Info("dry run")

		return printDefinition(pipe, cfg, settings)
	case runner == runnerLocal:
		log.Info("running pipeline locally")

		err = pipe.Run(ctx, pipeline.NewMemoryResultStore())
		if err != nil {
			return err
		}
		for _, name := range msr.Names() {
			log.WithFields(logrus.Fields{"step": name, "duration": msr.GetMetric(name).Duration()}).Info("step duration")
		}

		return nil
	default:
		return submit(ctx, pipe, cfg, c, settings)
	}
}

func jobSettings(cfg *config.Config, settings runSettings, configURI string) sagemakerpipeline.Settings {
	return sagemakerpipeline.Settings{
		ImageURI:     cfg.Pipeline.ImageURI,
		RoleArn:      cfg.Pipeline.RoleArn,
		InstanceType: cfg.Pipeline.InstanceType,
		ConfigURI:    configURI,
		InputPath:    settings.inputPath,
		OutputPath:   settings.outputPath,
		ExecutionID:  settings.executionID,
		Environment:  map[string]string{logLevelEnv: logLevel},
	}
}

// printDefinition lists the steps and, when the job image and role are known, prints the rendered
// SageMaker definition.
func printDefinition(pipe *pipeline.Pipeline, cfg *config.Config, settings runSettings) error {
	def, err := pipe.Definition()
	if err != nil {
		return err
	}
	for _, step := range def.Steps {
		logrus.WithFields(logrus.Fields{
			"step":       step.Name,
			"kind":       step.Kind,
			"inputs":     step.Inputs,
			"depends_on": step.DependsOn,
		}).Info("step")
	}

	err = pipe.Finish()
	if err != nil {
		return err
	}

	if cfg.Pipeline.ImageURI == "" || cfg.Pipeline.RoleArn == "" {
		return nil
	}

	rendered, err := sagemakerpipeline.Render(def, jobSettings(cfg, settings, sagemakerpipeline.ConfigURI(settings.outputPath)))
	if err != nil {
		return err
	}
	body, err := rendered.JSON()
	if err != nil {
		return err
	}
	fmt.Println(body)

	return nil
}

func submit(ctx context.Context, pipe *pipeline.Pipeline, cfg *config.Config, c *clients, settings runSettings) error {
	def, err := pipe.Definition()
	if err != nil {
		return err
	}

	err = pipe.Finish()
	if err != nil {
		return err
	}

	submitter := sagemakerpipeline.NewSubmitter(c.sagemaker, c.s3)
	configURI, err := submitter.UploadConfig(ctx, cfg, settings.outputPath)
	if err != nil {
		return err
	}

	rendered, err := sagemakerpipeline.Render(def, jobSettings(cfg, settings, configURI))
	if err != nil {
		return err
	}

	_, err = submitter.Submit(ctx, cfg.Pipeline.Name, rendered, jobSettings(cfg, settings, configURI))

	return err
}
