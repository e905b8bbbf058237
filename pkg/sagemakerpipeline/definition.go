// Package sagemakerpipeline runs a step graph on SageMaker Pipelines.
//
// Every step becomes a training job running the evalpipe image with the step sub-command. Data and
// order edges both become DependsOn entries: the results themselves go through the S3 result store.
package sagemakerpipeline

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-evalpipeline/internal/s3uri"
	"github.com/askiada/go-evalpipeline/pkg/pipeline"
	"github.com/askiada/go-evalpipeline/pkg/pipeline/model"
)

const (
	definitionVersion   = "2020-12-01"
	trainingStepType    = "Training"
	trainingInputMode   = "File"
	defaultVolumeSize   = 30
	defaultMaxRuntime   = 24 * time.Hour
	defaultInstanceType = "ml.m5.xlarge"
	entrypoint          = "evalpipe"
)

var (
	ErrImageMustBeSet = errors.New("container image must be set")
	ErrRoleMustBeSet  = errors.New("execution role must be set")
)

// Settings describe the jobs running the steps of one execution.
type Settings struct {
	ImageURI string
	RoleArn  string
	// InstanceType is used by steps not asking for a specific instance.
	InstanceType string
	// ConfigURI is where the configuration of the run was uploaded.
	ConfigURI string
	InputPath string
	// OutputPath receives the job outputs, under <OutputPath>/jobs/<step>.
	OutputPath  string
	ExecutionID string
	MaxRuntime  time.Duration
	// Environment is passed to every job, e.g. the log level.
	Environment map[string]string
}

// Definition is the JSON document accepted by CreatePipeline.
type Definition struct {
	Version    string         `json:"Version"`
	Metadata   map[string]any `json:"Metadata"`
	Parameters []any          `json:"Parameters"`
	Steps      []Step         `json:"Steps"`
}

type Step struct {
	Name      string            `json:"Name"`
	Type      string            `json:"Type"`
	Arguments TrainingArguments `json:"Arguments"`
	DependsOn []string          `json:"DependsOn,omitempty"`
}

// TrainingArguments mirror the CreateTrainingJob request.
type TrainingArguments struct {
	AlgorithmSpecification AlgorithmSpecification `json:"AlgorithmSpecification"`
	OutputDataConfig       OutputDataConfig       `json:"OutputDataConfig"`
	StoppingCondition      StoppingCondition      `json:"StoppingCondition"`
	ResourceConfig         ResourceConfig         `json:"ResourceConfig"`
	RoleArn                string                 `json:"RoleArn"`
	Environment            map[string]string      `json:"Environment,omitempty"`
}

type AlgorithmSpecification struct {
	TrainingImage       string   `json:"TrainingImage"`
	TrainingInputMode   string   `json:"TrainingInputMode"`
	ContainerEntrypoint []string `json:"ContainerEntrypoint"`
	ContainerArguments  []string `json:"ContainerArguments"`
}

type OutputDataConfig struct {
	S3OutputPath string `json:"S3OutputPath"`
}

type StoppingCondition struct {
	MaxRuntimeInSeconds int `json:"MaxRuntimeInSeconds"`
}

type ResourceConfig struct {
	InstanceCount            int    `json:"InstanceCount"`
	InstanceType             string `json:"InstanceType"`
	VolumeSizeInGB           int    `json:"VolumeSizeInGB"`
	KeepAlivePeriodInSeconds int    `json:"KeepAlivePeriodInSeconds,omitempty"`
}

// StepArguments returns the arguments of the step sub-command running step.
func StepArguments(settings Settings, step *model.StepInfo) []string {
	args := []string{
		"step", step.Name,
		"--config-uri", settings.ConfigURI,
		"--input-data-path", settings.InputPath,
		"--execution-id", settings.ExecutionID,
	}
	for _, cmd := range step.Job.PreExecutionCommands {
		args = append(args, "--pre-exec", cmd)
	}

	return args
}

// Render turns the step graph into a pipeline definition.
func Render(def *pipeline.Definition, settings Settings) (*Definition, error) {
	if settings.ImageURI == "" {
		return nil, ErrImageMustBeSet
	}
	if settings.RoleArn == "" {
		return nil, ErrRoleMustBeSet
	}
	if settings.InstanceType == "" {
		settings.InstanceType = defaultInstanceType
	}
	if settings.MaxRuntime == 0 {
		settings.MaxRuntime = defaultMaxRuntime
	}

	res := &Definition{
		Version:    definitionVersion,
		Metadata:   map[string]any{},
		Parameters: []any{},
		Steps:      make([]Step, 0, len(def.Steps)),
	}

	parents := map[string][]string{}
	for _, e := range def.Edges {
		parents[e.To] = append(parents[e.To], e.From)
	}

	for _, info := range def.Steps {
		instanceType := info.Job.InstanceType
		if instanceType == "" {
			instanceType = settings.InstanceType
		}

		res.Steps = append(res.Steps, Step{
			Name: info.Name,
			Type: trainingStepType,
			Arguments: TrainingArguments{
				AlgorithmSpecification: AlgorithmSpecification{
					TrainingImage:       settings.ImageURI,
					TrainingInputMode:   trainingInputMode,
					ContainerEntrypoint: []string{entrypoint},
					ContainerArguments:  StepArguments(settings, info),
				},
				OutputDataConfig: OutputDataConfig{
					S3OutputPath: s3uri.Join(settings.OutputPath, "jobs", info.Name),
				},
				StoppingCondition: StoppingCondition{
					MaxRuntimeInSeconds: int(settings.MaxRuntime.Seconds()),
				},
				ResourceConfig: ResourceConfig{
					InstanceCount:            1,
					InstanceType:             instanceType,
					VolumeSizeInGB:           defaultVolumeSize,
					KeepAlivePeriodInSeconds: int(info.Job.KeepAlivePeriod.Seconds()),
				},
				RoleArn:     settings.RoleArn,
				Environment: settings.Environment,
			},
			DependsOn: parents[info.Name],
		})
	}

	return res, nil
}

// JSON encodes the definition.
func (d *Definition) JSON() (string, error) {
	out, err := json.Marshal(d)
	if err != nil {
		return "", errors.Wrap(err, "unable to encode pipeline definition")
	}

	return string(out), nil
}
