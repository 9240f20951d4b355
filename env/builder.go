// Package env builds the provisioned base virtualenv shared by a test session
// and produces per-notebook clones of it.
package env

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gofrs/flock"

	"github.com/notebook-infra/nb-acceptor/metrics"
)

// Packages are installed into the base environment. The list is fixed:
// every clone inherits it without re-running the installer.
var Packages = []string{
	// for running the notebooks
	"papermill",
	"jupyter",
	"virtualenv-clone",
	// assumed to be part of colab
	"seaborn",
	// https://github.com/nteract/papermill/issues/519
	"ipykernel==5.3.4",
}

// BuildError indicates the base environment could not be provisioned.
// It is fatal to the whole session and never retried.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("environment build error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *BuildError) Unwrap() error {
	return e.Err
}

// BaseEnv is a fully provisioned virtualenv shared read-only by all workers
// for the lifetime of the session.
type BaseEnv struct {
	Dir string
}

// Pip returns the path of the installer inside the environment.
func (b *BaseEnv) Pip() string {
	return filepath.Join(b.Dir, "bin", "pip")
}

// Activate returns the path of the activation script inside the environment.
func (b *BaseEnv) Activate() string {
	return filepath.Join(b.Dir, "bin", "activate")
}

// Builder provisions base environments.
type Builder struct {
	log    log.Logger
	python string

	// cmdBuilder is swapped out in tests so provisioning is hermetic.
	cmdBuilder func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewBuilder creates a Builder that provisions environments with the given
// python interpreter.
func NewBuilder(logger log.Logger, python string) *Builder {
	if logger == nil {
		logger = log.New()
	}
	if python == "" {
		python = "python3"
	}
	return &Builder{
		log:        logger.New("component", "env-builder"),
		python:     python,
		cmdBuilder: exec.CommandContext,
	}
}

// EnsureBase returns the base environment at targetDir, building it if no
// other worker has yet. Safe under concurrent callers in this process and
// across worker processes: a file lock derived from targetDir serializes the
// check-then-create section, so exactly one caller builds and the rest
// observe the finished directory.
func (b *Builder) EnsureBase(ctx context.Context, targetDir string) (*BaseEnv, error) {
	// The lock file lives next to targetDir, so the parent has to exist
	// before the lock can be created. First run on a fresh machine hits this.
	if err := os.MkdirAll(filepath.Dir(targetDir), 0o755); err != nil {
		return nil, &BuildError{Err: fmt.Errorf("failed to create work directory: %w", err)}
	}

	lock := flock.New(targetDir + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, &BuildError{Err: fmt.Errorf("failed to acquire build lock: %w", err)}
	}
	defer func() {
		_ = lock.Unlock()
	}()

	if info, err := os.Stat(targetDir); err == nil && info.IsDir() {
		b.log.Warn("Base environment directory already exists, reusing it", "dir", targetDir)
		b.log.Warn("If all notebooks are failing, a previous aborted run may have left this directory around",
			"hint", fmt.Sprintf("rm -rf %s", targetDir))
		return &BaseEnv{Dir: targetDir}, nil
	}

	b.log.Info("Building base environment", "dir", targetDir, "python", b.python)
	base := &BaseEnv{Dir: targetDir}

	if err := b.run(ctx, b.python, "-m", "venv", targetDir); err != nil {
		return nil, &BuildError{Err: fmt.Errorf("failed to create virtualenv at %s: %w", targetDir, err)}
	}
	installArgs := append([]string{"install"}, Packages...)
	if err := b.run(ctx, base.Pip(), installArgs...); err != nil {
		return nil, &BuildError{Err: fmt.Errorf("failed to install packages: %w", err)}
	}

	metrics.RecordEnvBuild()
	b.log.Info("Base environment ready", "dir", targetDir)
	return base, nil
}

// run executes one provisioning command, streaming its output while keeping
// stderr for the error message.
func (b *Builder) run(ctx context.Context, name string, args ...string) error {
	cmd := b.cmdBuilder(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = os.Stdout
	cmd.Stderr = io.MultiWriter(os.Stderr, &stderr)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v: %w: %s", name, args, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
