// Package config loads the YAML document describing an evaluation pipeline.
//
// A configuration names the pipeline, the dataset to evaluate on, the evaluation algorithms and the
// candidate models. It is loaded once per run and never modified afterwards.
package config

import "time"

const (
	// DefaultFileName is used when no configuration path is given on the command line.
	DefaultFileName = "pipeline_config.yaml"

	DefaultProvider              = "jumpstart"
	DefaultModelPackageGroup     = "FMEvaluationBestModel"
	DefaultApprovalStatus        = "PendingManualApproval"
	DefaultStepInstanceType      = "ml.m5.xlarge"
	DefaultDatasetMimeType       = "application/jsonlines"
	DefaultModelInputKey         = "question"
	DefaultTargetOutputKey       = "answers"
	DefaultHarnessPreExecCommand = "pip install fmeval==0.2.0"
	GoalMaximize                 = "maximize"
	GoalMinimize                 = "minimize"
	defaultHarnessModule         = "fmeval_runner"
	defaultHarnessInterpreter    = "python3"
)

// Config is the typed view of a pipeline configuration file.
type Config struct {
	Pipeline     Pipeline     `yaml:"pipeline"`
	Dataset      Dataset      `yaml:"dataset"`
	Algorithms   []Algorithm  `yaml:"algorithms"`
	Models       []Model      `yaml:"models"`
	Registration Registration `yaml:"registration"`
	Evaluation   Evaluation   `yaml:"evaluation"`
}

type Pipeline struct {
	Name string `yaml:"name"`
	// RoleArn is the execution role used by the pipeline and the jobs it starts.
	RoleArn string `yaml:"role_arn,omitempty"`
	// ImageURI is the container image running remote steps. It must contain the evalpipe binary.
	ImageURI     string `yaml:"image_uri,omitempty"`
	InstanceType string `yaml:"instance_type,omitempty"`

	// WaitTimeout bounds the wait for an endpoint to be in service, e.g. "90m".
	WaitTimeout time.Duration `yaml:"wait_timeout,omitempty"`
}

type Dataset struct {
	DatasetName       string `yaml:"dataset_name" json:"dataset_name"`
	InputDataLocation string `yaml:"input_data_location" json:"input_data_location"`
	DatasetMimeType   string `yaml:"dataset_mime_type,omitempty" json:"dataset_mime_type,omitempty"`
	ModelInputKey     string `yaml:"model_input_key,omitempty" json:"model_input_key,omitempty"`
	TargetOutputKey   string `yaml:"target_output_key,omitempty" json:"target_output_key,omitempty"`
}

// Algorithm describes one evaluation algorithm run by the harness.
type Algorithm struct {
	Algorithm             string `yaml:"algorithm" json:"algorithm"`
	Module                string `yaml:"module,omitempty" json:"module,omitempty"`
	Config                string `yaml:"config,omitempty" json:"config,omitempty"`
	TargetOutputDelimiter string `yaml:"target_output_delimiter,omitempty" json:"target_output_delimiter,omitempty"`
	// Metric is the score compared during model selection.
	Metric string `yaml:"metric,omitempty" json:"metric,omitempty"`
	Goal   string `yaml:"goal,omitempty" json:"goal,omitempty"`
}

type Model struct {
	Name             string            `yaml:"name,omitempty" json:"name,omitempty"`
	Provider         string            `yaml:"provider,omitempty" json:"provider,omitempty"`
	ModelID          string            `yaml:"model_id" json:"model_id"`
	ModelVersion     string            `yaml:"model_version" json:"model_version"`
	EndpointName     string            `yaml:"endpoint_name" json:"endpoint_name"`
	DeploymentConfig Deployment        `yaml:"deployment_config" json:"deployment_config"`
	EvaluationConfig ModelEvaluation   `yaml:"evaluation_config,omitempty" json:"evaluation_config,omitempty"`
	Finetuning       *Finetuning       `yaml:"finetuning,omitempty" json:"finetuning,omitempty"`
	FinetuningConfig *Finetuning       `yaml:"finetuning_config,omitempty" json:"-"`
	CleanupEndpoint  bool              `yaml:"cleanup_endpoint" json:"cleanup_endpoint"`
	Environment      map[string]string `yaml:"environment,omitempty" json:"environment,omitempty"`
}

type Deployment struct {
	InstanceType string `yaml:"instance_type" json:"instance_type"`
	NumInstances int    `yaml:"num_instances" json:"num_instances"`

	// WaitTimeout overrides pipeline.wait_timeout for this endpoint.
	WaitTimeout time.Duration `yaml:"wait_timeout,omitempty" json:"wait_timeout,omitempty"`
}

// ModelEvaluation tells the harness how to talk to the deployed model.
type ModelEvaluation struct {
	// Output is a JMESPath expression extracting the generated text from the endpoint response.
	Output          string `yaml:"output,omitempty" json:"output,omitempty"`
	ContentTemplate string `yaml:"content_template,omitempty" json:"content_template,omitempty"`
	// PromptTemplate wraps every model input, e.g. "[INST] $model_input [/INST]".
	PromptTemplate string `yaml:"prompt_template,omitempty" json:"prompt_template,omitempty"`
}

type Finetuning struct {
	TrainDataPath      string               `yaml:"train_data_path" json:"train_data_path"`
	ValidationDataPath string               `yaml:"validation_data_path" json:"validation_data_path"`
	Parameters         FinetuningParameters `yaml:"parameters" json:"parameters"`
}

type FinetuningParameters struct {
	Epoch            int    `yaml:"epoch" json:"epoch"`
	MaxInputLength   int    `yaml:"max_input_length" json:"max_input_length"`
	InstructionTuned bool   `yaml:"instruction_tuned" json:"instruction_tuned"`
	ChatDataset      bool   `yaml:"chat_dataset" json:"chat_dataset"`
	InstanceType     string `yaml:"instance_type" json:"instance_type"`
	NumInstances     int    `yaml:"num_instances" json:"num_instances"`

	// MaxRuntime is the stopping condition of the training job. The deploy step waits for the job
	// at most that long.
	MaxRuntime time.Duration `yaml:"max_runtime,omitempty" json:"max_runtime,omitempty"`
}

type Registration struct {
	ModelPackageGroupName string `yaml:"model_package_group_name,omitempty"`
	ApprovalStatus        string `yaml:"approval_status,omitempty"`
	// AttachMetrics uploads the winning evaluation report and links it to the model package.
	AttachMetrics bool `yaml:"attach_metrics,omitempty"`
}

// Evaluation configures the external evaluation harness process.
type Evaluation struct {
	Command              []string `yaml:"command,omitempty"`
	PreExecutionCommands []string `yaml:"pre_execution_commands,omitempty"`
}

// StepName returns the name used in step names for the model.
func (m Model) StepName() string {
	if m.Name != "" {
		return m.Name
	}

	return m.ModelID
}

// IsFinetuning reports whether the model is fine-tuned before deployment.
func (m Model) IsFinetuning() bool {
	return m.Finetuning != nil
}

func (c *Config) applyDefaults() {
	if c.Pipeline.InstanceType == "" {
		c.Pipeline.InstanceType = DefaultStepInstanceType
	}
	if c.Dataset.DatasetMimeType == "" {
		c.Dataset.DatasetMimeType = DefaultDatasetMimeType
	}
	if c.Dataset.ModelInputKey == "" {
		c.Dataset.ModelInputKey = DefaultModelInputKey
	}
	if c.Dataset.TargetOutputKey == "" {
		c.Dataset.TargetOutputKey = DefaultTargetOutputKey
	}
	for i := range c.Algorithms {
		if c.Algorithms[i].Goal == "" {
			c.Algorithms[i].Goal = GoalMaximize
		}
	}
	for i := range c.Models {
		m := &c.Models[i]
		if m.Provider == "" {
			m.Provider = DefaultProvider
		}
	}
	if c.Registration.ModelPackageGroupName == "" {
		c.Registration.ModelPackageGroupName = DefaultModelPackageGroup
	}
	if c.Registration.ApprovalStatus == "" {
		c.Registration.ApprovalStatus = DefaultApprovalStatus
	}
	if len(c.Evaluation.Command) == 0 {
		c.Evaluation.Command = []string{defaultHarnessInterpreter, "-m", defaultHarnessModule}
	}
	if c.Evaluation.PreExecutionCommands == nil {
		c.Evaluation.PreExecutionCommands = []string{DefaultHarnessPreExecCommand}
	}
}
