package main

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-evalpipeline/pkg/config"
	"github.com/askiada/go-evalpipeline/pkg/pipeline"
	"github.com/askiada/go-evalpipeline/pkg/sagemakerpipeline"
)

// TestDockerfile checks the step image provides what the rendered jobs run.
func TestDockerfile(t *testing.T) {
	t.Parallel()

	content, err := os.ReadFile("Dockerfile")
	require.NoError(t, err)
	dockerfile := string(content)

	pipe, err := pipeline.New("image")
	require.NoError(t, err)
	_, err = pipeline.AddRootStep(pipe, "root", func(context.Context) (int, error) { return 0, nil })
	require.NoError(t, err)
	def, err := pipe.Definition()
	require.NoError(t, err)

	rendered, err := sagemakerpipeline.Render(def, sagemakerpipeline.Settings{
		ImageURI: "evalpipe:latest",
		RoleArn:  "arn:aws:iam::123456789012:role/pipeline",
	})
	require.NoError(t, err)
	require.Len(t, rendered.Steps, 1)

	entrypoint := rendered.Steps[0].Arguments.AlgorithmSpecification.ContainerEntrypoint
	require.Len(t, entrypoint, 1)
	assert.Contains(t, dockerfile, "/usr/local/bin/"+entrypoint[0])
	assert.Contains(t, dockerfile, "./cmd/"+entrypoint[0])

	fmeval := strings.TrimPrefix(config.DefaultHarnessPreExecCommand, "pip install ")
	assert.Contains(t, dockerfile, fmeval, "the image and the harness install the same fmeval")
}
