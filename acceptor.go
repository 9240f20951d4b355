// Package nbat is a Notebook Acceptance Tester: it discovers the notebooks
// tracked in a repository and verifies that each of them executes cleanly
// against the released version of the library under test.
package nbat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/notebook-infra/nb-acceptor/discovery"
	"github.com/notebook-infra/nb-acceptor/env"
	"github.com/notebook-infra/nb-acceptor/logging"
	"github.com/notebook-infra/nb-acceptor/metrics"
	"github.com/notebook-infra/nb-acceptor/runner"
	"github.com/notebook-infra/nb-acceptor/types"
)

// Acceptor runs notebook acceptance tests.
type Acceptor struct {
	ctx     context.Context
	config  *Config
	version string
	items   []types.WorkItem
	result  *runner.RunnerResult

	running atomic.Bool
	done    chan struct{}
	mu      sync.Mutex
}

// New discovers the work list and prepares an Acceptor. Discovery happens
// once, up front: the work list must be identical for every worker of a
// session, so it is fixed before anything executes.
func New(ctx context.Context, config *Config, version string) (*Acceptor, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating acceptor with config",
		"repoDir", config.RepoDir,
		"mode", config.Mode,
		"workDir", config.WorkDir,
		"concurrency", config.Concurrency,
		"runInterval", config.RunInterval)

	excludes, err := discovery.LoadExcludes(config.ExcludeFile)
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to load exclusion patterns: %w", err))
	}

	items, err := discovery.List(ctx, discovery.Config{
		Log:      config.Log,
		RepoDir:  config.RepoDir,
		Excludes: excludes,
	})
	if err != nil {
		return nil, NewRuntimeError(err)
	}

	return &Acceptor{
		ctx:     ctx,
		config:  config,
		version: version,
		items:   items,
		done:    make(chan struct{}),
	}, nil
}

// Start runs the acceptance tests, once or periodically at the configured
// interval. In run-once mode it returns a TestFailureError when any notebook
// failed; in interval mode it blocks until Stop is called or ctx is done.
func (a *Acceptor) Start(ctx context.Context) error {
	a.running.Store(true)

	if a.config.RunOnce {
		a.config.Log.Info("Starting nb-acceptor in run-once mode", "notebooks", len(a.items))
	} else {
		a.config.Log.Info("Starting nb-acceptor in continuous mode", "notebooks", len(a.items), "interval", a.config.RunInterval)
	}

	if err := a.runNotebooks(ctx); err != nil {
		a.config.Log.Error("Runtime error running notebooks", "error", err)
		return err
	}

	if a.config.RunOnce {
		a.config.Log.Info("Run completed, exiting (run-once mode)")
		if a.result != nil && a.result.Status == types.TestStatusFail {
			return NewTestFailureError(a.result.String())
		}
		return nil
	}

	for {
		select {
		case <-time.After(a.config.RunInterval):
			if !a.running.Load() {
				return nil
			}
			a.config.Log.Info("Running periodic notebook tests")
			if err := a.runNotebooks(ctx); err != nil {
				a.config.Log.Error("Error running periodic notebook tests", "error", err)
			}

		case <-a.done:
			a.config.Log.Debug("Done signal received, stopping periodic runner")
			return nil

		case <-ctx.Done():
			a.config.Log.Debug("Context canceled, stopping periodic runner")
			a.running.Store(false)
			return nil
		}
	}
}

// Stop stops the acceptor service.
func (a *Acceptor) Stop(ctx context.Context) error {
	a.config.Log.Info("Stopping nb-acceptor")

	if !a.running.Load() {
		a.config.Log.Debug("Service already stopped, nothing to do")
		return nil
	}

	a.running.Store(false)
	close(a.done)
	return nil
}

// Stopped returns true if the acceptor service is stopped.
func (a *Acceptor) Stopped() bool {
	return !a.running.Load()
}

// Result returns the most recent run result.
func (a *Acceptor) Result() *runner.RunnerResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result
}

// runNotebooks runs the whole work list once and processes the results
func (a *Acceptor) runNotebooks(ctx context.Context) error {
	runID := uuid.New().String()

	fileLogger, err := logging.NewFileLogger(a.config.LogDir, runID)
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create file logger: %w", err))
	}

	var builder *env.Builder
	if a.config.Mode == runner.ModeIsolated {
		builder = env.NewBuilder(a.config.Log, a.config.PythonBinary)
	}

	r, err := runner.NewNotebookRunner(runner.Config{
		Items:       a.items,
		Mode:        a.config.Mode,
		RepoDir:     a.config.RepoDir,
		WorkDir:     a.config.WorkDir,
		Engine:      a.config.EngineBinary,
		Concurrency: a.config.Concurrency,
		Log:         a.config.Log,
		FileLogger:  fileLogger,
		Builder:     builder,
	})
	if err != nil {
		return NewRuntimeError(fmt.Errorf("failed to create notebook runner: %w", err))
	}

	result, err := r.RunAll(ctx)
	if err != nil {
		// Anything failing here, including a base environment build
		// failure, is session-fatal.
		return NewRuntimeError(err)
	}

	a.mu.Lock()
	a.result = result
	a.mu.Unlock()

	a.printResultsTable(result)
	fmt.Println(result.String())

	metrics.RecordAcceptance(
		result.RunID,
		string(result.Status),
		result.Stats.Total,
		result.Stats.Passed,
		result.Stats.Failed,
		result.Duration,
	)
	a.config.Log.Info("Run completed", "run_id", result.RunID, "status", result.Status, "logs", fileLogger.RunDir())
	return nil
}

// printResultsTable prints the results of the acceptance tests to the console.
func (a *Acceptor) printResultsTable(result *runner.RunnerResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Notebook Acceptance Results (%s)", formatDuration(result.Duration)))

	t.AppendHeader(table.Row{"Notebook", "Duration", "Status", "Details"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Notebook", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Details", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, res := range result.Notebooks {
		details := ""
		if res.Error != nil {
			details = res.Error.Error()
		} else if res.Execution != nil && res.Execution.OutputPath != "" {
			details = res.Execution.OutputPath
		}
		t.AppendRow(table.Row{
			res.Item.Name,
			formatDuration(res.Duration),
			getResultString(res.Status),
			details,
		})
	}

	if result.Status == types.TestStatusPass {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		formatDuration(result.Duration),
		getResultString(result.Status),
		fmt.Sprintf("%d passed, %d failed of %d", result.Stats.Passed, result.Stats.Failed, result.Stats.Total),
	})

	t.Render()
}
