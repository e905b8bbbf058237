package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CommandHarness runs the harness as a child process. The request is written as JSON on its standard
// input and the list of outputs is read as JSON from its standard output.
//
// Before the first evaluation the runner module is installed in RunnerDir, which is put first on the
// PYTHONPATH of the command.
type CommandHarness struct {
	Command []string
	// PreExecutionCommands run through the shell, in order, before the first evaluation.
	PreExecutionCommands []string
	Env                  []string
	// RunnerDir defaults to DefaultRunnerDir.
	RunnerDir string

	mu       sync.Mutex
	prepared bool
	env      []string
}

// NewCommandHarness creates a harness running command.
func NewCommandHarness(command []string, preExecutionCommands []string) *CommandHarness {
	return &CommandHarness{
		Command:              command,
		PreExecutionCommands: preExecutionCommands,
	}
}

// RunShellCommands runs every command with sh -c and stops on the first failure.
func RunShellCommands(ctx context.Context, commands []string, env []string) error {
	for _, command := range commands {
		logrus.WithField("command", command).Info("running pre-execution command")

		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Env = append(os.Environ(), env...)
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()
		if err != nil {
			return errors.Wrapf(err, "unable to run %q: %s", command, strings.TrimSpace(stderr.String()))
		}
		logrus.Debug(stdout.String())
	}

	return nil
}

// prepare runs the pre-execution commands and installs the runner module once, then returns the
// environment of the command. Concurrent evaluations wait for it.
func (h *CommandHarness) prepare(ctx context.Context) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.prepared {
		return h.env, nil
	}

	err := RunShellCommands(ctx, h.PreExecutionCommands, h.Env)
	if err != nil {
		return nil, err
	}

	dir := h.RunnerDir
	if dir == "" {
		dir = DefaultRunnerDir()
	}
	err = InstallRunner(dir)
	if err != nil {
		return nil, err
	}

	h.env = withPythonPath(h.Env, dir)
	h.prepared = true

	return h.env, nil
}

func (h *CommandHarness) Evaluate(ctx context.Context, req Request) ([]Output, error) {
	if len(h.Command) == 0 {
		return nil, errors.Wrap(ErrHarness, "no command configured")
	}

	env, err := h.prepare(ctx)
	if err != nil {
		return nil, err
	}

	input, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode evaluation request")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, h.Command[0], h.Command[1:]...) //nolint:gosec // the command comes from the pipeline configuration
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logrus.WithFields(logrus.Fields{
		"endpoint": req.ModelRunner.EndpointName,
		"model_id": req.ModelRunner.ModelID,
	}).Infof("running %d evaluation algorithms", len(req.Algorithms))

	err = cmd.Run()
	if err != nil {
		return nil, errors.Wrapf(ErrHarness, "%s: %s", err, strings.TrimSpace(stderr.String()))
	}

	var outputs []Output
	err = json.Unmarshal(stdout.Bytes(), &outputs)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode evaluation outputs")
	}

	for _, out := range outputs {
		if out.Error != "" {
			return nil, errors.Wrapf(ErrHarness, "%s: %s", out.EvalName, out.Error)
		}
	}

	return outputs, nil
}

var _ Harness = (*CommandHarness)(nil)
