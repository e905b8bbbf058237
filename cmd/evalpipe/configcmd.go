package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/askiada/go-evalpipeline/pkg/config"
)

var ErrUnknownModel = errors.New("unknown model")

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd, configModelCmd)

	configCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultFileName, "Path to the pipeline configuration file.")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Reads the pipeline configuration.",
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Prints the value of a dotted key, e.g. pipeline.image_uri.",
	Long: `The 'get' command prints one key of the configuration file as it is written, without
defaults or validation. Scalars are printed as-is, sections as YAML.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printKey(cmd.OutOrStdout(), configPath, args[0])
	},
	SilenceUsage: true,
}

var configModelCmd = &cobra.Command{
	Use:   "model NAME",
	Short: "Prints the validated configuration of the model named NAME, defaults included.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printModel(cmd.OutOrStdout(), configPath, args[0])
	},
	SilenceUsage: true,
}

func printKey(w io.Writer, path, key string) error {
	doc, err := config.LoadDocument(path)
	if err != nil {
		return err
	}

	value, err := doc.Get(strings.Split(key, ".")...)
	if err != nil {
		return err
	}

	switch v := value.(type) {
	case map[string]any, []any:
		return writeYAML(w, v)
	default:
		_, err = fmt.Fprintln(w, v)

		return errors.Wrap(err, "unable to print value")
	}
}

func writeYAML(w io.Writer, v any) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "unable to encode yaml")
	}

	_, err = w.Write(out)

	return errors.Wrap(err, "unable to print value")
}

func printModel(w io.Writer, path, name string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	model, ok := cfg.FindModel(name)
	if !ok {
		return errors.Wrap(ErrUnknownModel, name)
	}

	return writeYAML(w, model)
}
