package config

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrMissingKey    = errors.New("missing required key")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []error
}

func (v *ValidationError) Error() string {
	msgs := make([]string, len(v.Problems))
	for i, p := range v.Problems {
		msgs[i] = p.Error()
	}

	return ErrInvalidConfig.Error() + ": " + strings.Join(msgs, "; ")
}

// Is matches ErrInvalidConfig and any sentinel wrapped by one of the problems.
func (v *ValidationError) Is(target error) bool {
	if target == ErrInvalidConfig {
		return true
	}
	for _, p := range v.Problems {
		if errors.Is(p, target) {
			return true
		}
	}

	return false
}

type validator struct {
	problems []error
}

func (v *validator) require(ok bool, path string) {
	if !ok {
		v.problems = append(v.problems, errors.Wrap(ErrMissingKey, path))
	}
}

func (v *validator) check(ok bool, format string, args ...any) {
	if !ok {
		v.problems = append(v.problems, errors.Errorf(format, args...))
	}
}

// Validate checks the keys every pipeline needs. It returns a *ValidationError.
func (c *Config) Validate() error {
	v := &validator{}

	v.require(c.Pipeline.Name != "", "pipeline.name")
	v.check(c.Pipeline.WaitTimeout >= 0, "pipeline.wait_timeout must not be negative")
	v.require(c.Dataset.DatasetName != "", "dataset.dataset_name")
	v.require(c.Dataset.InputDataLocation != "", "dataset.input_data_location")
	v.require(len(c.Algorithms) > 0, "algorithms")
	v.require(len(c.Models) > 0, "models")

	for i, alg := range c.Algorithms {
		path := fmt.Sprintf("algorithms[%d]", i)
		v.require(alg.Algorithm != "", path+".algorithm")
		v.check(alg.Goal == "" || alg.Goal == GoalMaximize || alg.Goal == GoalMinimize,
			"%s.goal must be %s or %s, got %q", path, GoalMaximize, GoalMinimize, alg.Goal)
	}

	seen := map[string]int{}
	for i, m := range c.Models {
		path := fmt.Sprintf("models[%d]", i)
		v.require(m.ModelID != "", path+".model_id")
		v.require(m.ModelVersion != "", path+".model_version")
		v.require(m.EndpointName != "", path+".endpoint_name")
		v.require(m.DeploymentConfig.InstanceType != "", path+".deployment_config.instance_type")
		v.check(m.DeploymentConfig.NumInstances > 0, "%s.deployment_config.num_instances must be positive", path)
		v.check(m.DeploymentConfig.WaitTimeout >= 0, "%s.deployment_config.wait_timeout must not be negative", path)

		if m.Finetuning != nil {
			ft := m.Finetuning
			v.require(ft.TrainDataPath != "", path+".finetuning.train_data_path")
			v.require(ft.ValidationDataPath != "", path+".finetuning.validation_data_path")
			v.require(ft.Parameters.InstanceType != "", path+".finetuning.parameters.instance_type")
			v.check(ft.Parameters.NumInstances > 0, "%s.finetuning.parameters.num_instances must be positive", path)
			v.check(ft.Parameters.Epoch > 0, "%s.finetuning.parameters.epoch must be positive", path)
			v.check(ft.Parameters.MaxRuntime >= 0, "%s.finetuning.parameters.max_runtime must not be negative", path)
		}

		name := m.StepName()
		if name == "" {
			continue
		}
		if j, ok := seen[name]; ok {
			v.check(false, "%s and models[%d] share the step name %q, set a distinct name", path, j, name)
		}
		seen[name] = i
	}

	if len(v.problems) > 0 {
		return &ValidationError{Problems: v.problems}
	}

	return nil
}
