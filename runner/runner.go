// Package runner executes discovered notebooks, each in its own subprocess,
// and aggregates their pass/fail outcomes. In isolated mode every notebook
// runs inside a fresh clone of a session-wide base environment; in in-place
// mode notebooks run directly in the invoking environment and materialize an
// output artifact.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/notebook-infra/nb-acceptor/env"
	"github.com/notebook-infra/nb-acceptor/logging"
	"github.com/notebook-infra/nb-acceptor/metrics"
	"github.com/notebook-infra/nb-acceptor/types"
)

// Mode selects how notebooks are executed.
type Mode string

const (
	// ModeIsolated builds one shared base environment and clones it per
	// notebook. No output artifact is materialized.
	ModeIsolated Mode = "isolated"
	// ModeInPlace runs notebooks directly in the current environment and
	// always materializes an out/<rel-dir>/<name>.out.ipynb artifact.
	ModeInPlace Mode = "in-place"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeIsolated || m == ModeInPlace
}

// NotebookRunner defines the interface for running notebook acceptance tests
type NotebookRunner interface {
	RunAll(ctx context.Context) (*RunnerResult, error)
	RunNotebook(ctx context.Context, item types.WorkItem) (*types.NotebookResult, error)
}

// runner struct implements NotebookRunner interface
type runner struct {
	items       []types.WorkItem
	mode        Mode
	repoDir     string
	workDir     string // Session directory holding the base env and clones
	engine      string // Notebook execution engine binary
	concurrency int
	log         log.Logger
	fileLogger  *logging.FileLogger
	builder     *env.Builder
	runID       string

	base *env.BaseEnv // Set once per run in isolated mode

	// Execution output is teed here while being captured; overridable so
	// tests can observe the live mirror.
	stdout io.Writer
	stderr io.Writer
}

// Config holds configuration for creating a new runner
type Config struct {
	Items       []types.WorkItem
	Mode        Mode
	RepoDir     string
	WorkDir     string
	Engine      string // Path to the notebook execution engine, defaults to "papermill"
	Concurrency int    // Number of parallel workers, <=1 runs serially
	Log         log.Logger
	FileLogger  *logging.FileLogger
	Builder     *env.Builder
}

// NewNotebookRunner creates a new runner instance
func NewNotebookRunner(cfg Config) (NotebookRunner, error) {
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("invalid mode %q", cfg.Mode)
	}
	if cfg.RepoDir == "" {
		return nil, fmt.Errorf("repository directory is required")
	}
	if cfg.Mode == ModeIsolated {
		if cfg.WorkDir == "" {
			return nil, fmt.Errorf("work directory is required in isolated mode")
		}
		if cfg.Builder == nil {
			return nil, fmt.Errorf("environment builder is required in isolated mode")
		}
	}
	if cfg.Engine == "" {
		cfg.Engine = "papermill"
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	cfg.Log.Debug("NewNotebookRunner()", "mode", cfg.Mode, "repoDir", cfg.RepoDir,
		"workDir", cfg.WorkDir, "engine", cfg.Engine, "notebooks", len(cfg.Items))

	return &runner{
		items:       cfg.Items,
		mode:        cfg.Mode,
		repoDir:     cfg.RepoDir,
		workDir:     cfg.WorkDir,
		engine:      cfg.Engine,
		concurrency: cfg.Concurrency,
		log:         cfg.Log,
		fileLogger:  cfg.FileLogger,
		builder:     cfg.Builder,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}, nil
}

// RunAll implements the NotebookRunner interface. The base environment is
// ensured exactly once before any notebook executes; its failure aborts the
// session. Per-notebook failures are recorded as failed results and never
// stop sibling notebooks.
func (r *runner) RunAll(ctx context.Context) (*RunnerResult, error) {
	if r.fileLogger != nil {
		r.runID = r.fileLogger.GetRunID()
	} else {
		r.runID = uuid.New().String()
	}
	defer func() {
		r.runID = ""
	}()

	start := time.Now()
	r.log.Debug("Running all notebooks", "run_id", r.runID, "mode", r.mode)

	result := newRunnerResult(r.runID, start)
	if len(r.items) == 0 {
		r.log.Warn("No notebooks to run")
		result.finalize(time.Now())
		return result, nil
	}

	if r.mode == ModeIsolated {
		base, err := r.builder.EnsureBase(ctx, filepath.Join(r.workDir, "base-env"))
		if err != nil {
			return nil, err
		}
		r.base = base
	}

	var results []*types.NotebookResult
	if r.concurrency <= 1 {
		for _, item := range r.items {
			res, err := r.RunNotebook(ctx, item)
			if err != nil {
				return nil, fmt.Errorf("running notebook %s: %w", item.Name, err)
			}
			results = append(results, res)
		}
	} else {
		pe := NewParallelExecutor(r, r.concurrency)
		var err error
		results, err = pe.ExecuteNotebooks(ctx, r.items)
		if err != nil {
			return nil, err
		}
	}

	for _, res := range results {
		result.add(res)
	}
	result.finalize(time.Now())

	if r.fileLogger != nil {
		if err := r.fileLogger.WriteSummaryFooter(result.Status, result.Stats.Total,
			result.Stats.Passed, result.Stats.Failed, result.Duration); err != nil {
			r.log.Error("Failed to write summary footer", "error", err)
		}
	}

	r.log.Info("Notebook run completed", "run_id", result.RunID, "status", result.Status,
		"total", result.Stats.Total, "passed", result.Stats.Passed, "failed", result.Stats.Failed)
	return result, nil
}

// RunNotebook executes one notebook and returns its outcome as data. A
// non-zero engine exit is not an error return: it comes back as a failed
// NotebookResult carrying the captured streams. Only infrastructure misuse
// (nil context) produces an error.
//
// There is no deadline on the engine subprocess: a hung notebook occupies its
// worker until the surrounding context is cancelled.
func (r *runner) RunNotebook(ctx context.Context, item types.WorkItem) (*types.NotebookResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}

	r.log.Info("Running notebook", "notebook", item.Name, "mode", r.mode)
	start := time.Now()

	res := &types.NotebookResult{Item: item}

	script, workDir, clone, err := r.composeInvocation(item)
	if err != nil {
		// Clone failures fail this notebook only.
		res.Status = types.TestStatusFail
		res.Error = err
		res.Duration = time.Since(start)
		r.record(res)
		return res, nil
	}
	if clone != nil {
		res.CloneDir = clone.Dir
	}

	execResult := r.execute(ctx, script, workDir)
	if r.mode == ModeInPlace {
		execResult.OutputPath = item.OutputPath
	}
	res.Execution = execResult
	res.Duration = time.Since(start)

	if execResult.Success() {
		res.Status = types.TestStatusPass
		if clone != nil {
			if err := clone.Remove(); err != nil {
				r.log.Warn("Failed to remove clone", "dir", clone.Dir, "error", err)
			}
		}
	} else {
		res.Status = types.TestStatusFail
		res.Error = r.failure(item, execResult)
		r.report(res)
	}

	r.record(res)
	return res, nil
}

// composeInvocation builds the shell script for one notebook. In isolated
// mode it first clones the base environment; the returned clone is non-nil
// in that case.
func (r *runner) composeInvocation(item types.WorkItem) (script string, workDir string, clone *env.ClonedEnv, err error) {
	switch r.mode {
	case ModeIsolated:
		dest := filepath.Join(r.workDir, "clones", item.Name)
		clone, err = env.Clone(r.base, dest)
		if err != nil {
			return "", "", nil, err
		}
		script = fmt.Sprintf("cd %q\n. ./bin/activate\n%s %q\n", clone.Dir, r.engine, item.Path)
		return script, clone.Dir, clone, nil
	default:
		outDir := filepath.Dir(item.OutputPath)
		script = fmt.Sprintf("mkdir -p %q\n%s %q %q\n", outDir, r.engine, item.Path, item.OutputPath)
		return script, r.repoDir, nil, nil
	}
}

// execute runs the composed script, capturing both streams fully while
// teeing them to the invoking process's own streams for live visibility.
func (r *runner) execute(ctx context.Context, script string, workDir string) *types.ExecutionResult {
	var stdoutBuf, stderrBuf bytes.Buffer

	cmd := exec.CommandContext(ctx, "sh", "-c", script)
	cmd.Dir = workDir
	cmd.Stdout = io.MultiWriter(r.stdout, &stdoutBuf)
	cmd.Stderr = io.MultiWriter(r.stderr, &stderrBuf)

	runErr := cmd.Run()

	result := &types.ExecutionResult{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}
	if runErr == nil {
		result.ExitCode = 0
	} else if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	} else {
		// The process never started; surface that on stderr like any other
		// failing invocation.
		result.ExitCode = -1
		result.Stderr += fmt.Sprintf("\nfailed to start: %v", runErr)
	}
	return result
}

// failure builds the per-notebook failure error, labeled with the notebook's
// file name and, in in-place mode, the output artifact to inspect.
func (r *runner) failure(item types.WorkItem, execResult *types.ExecutionResult) error {
	if r.mode == ModeInPlace {
		return fmt.Errorf("notebook failure: %s, please see %s", item.File(), item.OutputPath)
	}
	return fmt.Errorf("notebook failure: %s", item.File())
}

// report surfaces the captured output of a failed execution. Isolated mode
// prints both streams; in-place mode prints only stderr since the artifact
// holds the full execution trace.
func (r *runner) report(res *types.NotebookResult) {
	if res.Execution == nil {
		return
	}
	if r.mode == ModeIsolated {
		fmt.Fprintln(r.stdout, res.Execution.Stdout)
	}
	fmt.Fprintln(r.stdout, res.Execution.Stderr)
}

func (r *runner) record(res *types.NotebookResult) {
	if res.Status == types.TestStatusFail {
		msg := strings.TrimSpace(fmt.Sprintf("%v", res.Error))
		r.log.Error("Notebook failed", "notebook", res.Item.Name, "error", msg)
	}
	metrics.RecordNotebook(r.runID, res.Item.Name, res.Status)
	if r.fileLogger != nil {
		if err := r.fileLogger.LogNotebook(res); err != nil {
			r.log.Error("Failed to persist notebook log", "notebook", res.Item.Name, "error", err)
		}
	}
}
