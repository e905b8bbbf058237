package evaluation

import (
	_ "embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// RunnerModule is the Python module, shipped with evalpipe, speaking the harness protocol on top of
// fmeval. The default harness command is python3 -m RunnerModule.
const RunnerModule = "fmeval_runner"

const pythonPathEnv = "PYTHONPATH"

//go:embed fmeval_runner.py
var runnerSource []byte

// DefaultRunnerDir receives the runner module when a harness has no RunnerDir.
func DefaultRunnerDir() string {
	return filepath.Join(os.TempDir(), "evalpipe-harness")
}

// InstallRunner writes the runner module to dir. The file is replaced atomically so concurrent
// installs never expose a partial module.
func InstallRunner(dir string) error {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, RunnerModule+"-*.tmp")
	if err != nil {
		return errors.Wrapf(err, "unable to create runner module in %s", dir)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(runnerSource)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrap(err, "unable to write runner module")
	}

	err = os.Rename(tmp.Name(), filepath.Join(dir, RunnerModule+".py"))
	if err != nil {
		return errors.Wrap(err, "unable to install runner module")
	}

	return nil
}

// withPythonPath puts dir first on the PYTHONPATH set by env, or inherited from the process.
func withPythonPath(env []string, dir string) []string {
	current, _ := os.LookupEnv(pythonPathEnv)
	for _, kv := range env {
		if value, ok := strings.CutPrefix(kv, pythonPathEnv+"="); ok {
			current = value
		}
	}

	path := dir
	if current != "" {
		path += string(os.PathListSeparator) + current
	}

	res := make([]string, 0, len(env)+1)
	res = append(res, env...)

	return append(res, pythonPathEnv+"="+path)
}
