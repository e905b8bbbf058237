package main

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/askiada/go-evalpipeline/pkg/config"
	"github.com/askiada/go-evalpipeline/pkg/evaluation"
	"github.com/askiada/go-evalpipeline/pkg/results"
)

var ErrMissingFlag = errors.New("missing required flag")

var (
	configURI   string
	executionID string
	preExec     []string
)

func init() {
	rootCmd.AddCommand(stepCmd)

	stepCmd.Flags().StringVar(&configURI, "config-uri", "", "S3 URI of the configuration uploaded at submission. Required.")
	stepCmd.Flags().StringVar(&executionID, "execution-id", "", "Execution id naming the output folder. Required.")
	stepCmd.Flags().StringArrayVar(&preExec, "pre-exec", nil, "Shell command run before the step. Repeatable.")

	_ = stepCmd.MarkFlagRequired("config-uri")
	_ = stepCmd.MarkFlagRequired("execution-id")
}

var stepCmd = &cobra.Command{
	Use:   "step NAME",
	Short: "Runs one step of a submitted pipeline.",
	Long: `The 'step' command is the entry point of the jobs started by SageMaker Pipelines. It rebuilds
the step graph from the uploaded configuration, reads the results of the parent steps from S3,
runs the named step and stores its result next to them.`,
	Args:         cobra.ExactArgs(1),
	RunE:         runStepCmd,
	SilenceUsage: true,
}

func runStepCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	name := args[0]

	if inputDataPath == "" {
		return errors.Wrap(ErrMissingFlag, "--input-data-path")
	}

	log := logrus.WithFields(logrus.Fields{"step": name, "execution": executionID})

	err := evaluation.RunShellCommands(ctx, preExec, nil)
	if err != nil {
		return err
	}

	c, err := newClients(ctx)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFromS3(ctx, c.s3, configURI)
	if err != nil {
		return err
	}

	settings := newRunSettings(cfg, inputDataPath, executionID)
	asm, err := newAssembler(c, cfg, settings, true)
	if err != nil {
		return err
	}

	pipe, err := asm.Build()
	if err != nil {
		return err
	}

	store, err := results.NewS3Store(c.s3, settings.outputPath)
	if err != nil {
		return err
	}

	log.WithField("result", store.URI(name)).Info("running step")

	err = pipe.RunStep(ctx, name, store)
	if err != nil {
		return err
	}

	log.Info("step done")

	return nil
}
