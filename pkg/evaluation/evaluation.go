// Package evaluation talks to the external harness computing evaluation metrics against a deployed
// model endpoint.
package evaluation

import (
	"context"

	"github.com/pkg/errors"

	"github.com/askiada/go-evalpipeline/pkg/config"
)

var ErrHarness = errors.New("evaluation harness failed")

// ModelRunner tells the harness how to invoke a deployed model.
type ModelRunner struct {
	Type            string `json:"type"`
	EndpointName    string `json:"endpoint_name"`
	ModelID         string `json:"model_id"`
	ModelVersion    string `json:"model_version"`
	Output          string `json:"output,omitempty"`
	ContentTemplate string `json:"content_template,omitempty"`
	// CustomAttributes are forwarded on every endpoint invocation, e.g. accept_eula=true.
	CustomAttributes string `json:"custom_attributes,omitempty"`
	PromptTemplate   string `json:"prompt_template,omitempty"`
}

// Dataset is the preprocessed dataset the algorithms run on.
type Dataset struct {
	Name                 string `json:"dataset_name"`
	URI                  string `json:"dataset_uri"`
	MimeType             string `json:"dataset_mime_type"`
	ModelInputLocation   string `json:"model_input_location"`
	TargetOutputLocation string `json:"target_output_location"`
}

type Request struct {
	ModelRunner ModelRunner        `json:"model_runner"`
	Dataset     Dataset            `json:"dataset"`
	Algorithms  []config.Algorithm `json:"algorithms"`
	// OutputPath is where the harness may store per-record outputs.
	OutputPath string `json:"output_path,omitempty"`
}

type Score struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type CategoryScore struct {
	Name   string  `json:"name"`
	Scores []Score `json:"scores"`
}

// Output is the result of one algorithm on one dataset.
type Output struct {
	EvalName       string          `json:"eval_name"`
	DatasetName    string          `json:"dataset_name"`
	DatasetScores  []Score         `json:"dataset_scores"`
	PromptTemplate string          `json:"prompt_template,omitempty"`
	CategoryScores []CategoryScore `json:"category_scores,omitempty"`
	OutputPath     string          `json:"output_path,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Score returns the dataset score called name.
func (o Output) Score(name string) (float64, bool) {
	for _, s := range o.DatasetScores {
		if s.Name == name {
			return s.Value, true
		}
	}

	return 0, false
}

// Harness runs evaluation algorithms against a model.
type Harness interface {
	Evaluate(ctx context.Context, req Request) ([]Output, error)
}
