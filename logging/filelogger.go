// Package logging persists captured notebook output to per-run log
// directories so failing executions can be inspected after the fact.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/notebook-infra/nb-acceptor/types"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
	FailedDirectory    = "failed"
	SummaryFilename    = "summary.log"
)

// FileLogger handles writing notebook output to files
type FileLogger struct {
	baseDir   string // Base directory for logs
	runDir    string // Directory for the current run
	failedDir string // Directory holding copies of failing notebook logs
	runID     string // Current run ID
	mu        sync.Mutex
}

// NewFileLogger creates the directory structure for one run:
// <baseDir>/testrun-<runID>/ with a failed/ subdirectory.
func NewFileLogger(baseDir string, runID string) (*FileLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	runDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	failedDir := filepath.Join(runDir, FailedDirectory)
	if err := os.MkdirAll(failedDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", failedDir, err)
	}

	return &FileLogger{
		baseDir:   baseDir,
		runDir:    runDir,
		failedDir: failedDir,
		runID:     runID,
	}, nil
}

// GetRunID returns the run ID this logger writes under.
func (l *FileLogger) GetRunID() string {
	return l.runID
}

// RunDir returns the directory for the current run.
func (l *FileLogger) RunDir() string {
	return l.runDir
}

// LogNotebook writes the captured output of one notebook execution to
// <runDir>/<name>.log, and mirrors it into failed/ when the notebook failed.
// Captured output is ANSI-stripped so the files stay grep-able.
func (l *FileLogger) LogNotebook(result *types.NotebookResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	content := formatNotebookLog(result)

	l.mu.Lock()
	defer l.mu.Unlock()

	name := logFilename(result.Item)
	path := filepath.Join(l.runDir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write notebook log %s: %w", path, err)
	}

	if result.Status == types.TestStatusFail {
		failedPath := filepath.Join(l.failedDir, name)
		if err := os.WriteFile(failedPath, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write failed notebook log %s: %w", failedPath, err)
		}
	}

	return l.appendSummary(result)
}

// WriteSummaryFooter appends the overall run outcome to the summary file.
func (l *FileLogger) WriteSummaryFooter(status types.TestStatus, total, passed, failed int, duration time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := fmt.Sprintf("\n%s: %d total, %d passed, %d failed in %.1fs\n",
		strings.ToUpper(string(status)), total, passed, failed, duration.Seconds())
	return l.appendToSummary(line)
}

func (l *FileLogger) appendSummary(result *types.NotebookResult) error {
	return l.appendToSummary(result.String() + "\n")
}

func (l *FileLogger) appendToSummary(line string) error {
	path := filepath.Join(l.runDir, SummaryFilename)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open summary file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("failed to append to summary file: %w", err)
	}
	return nil
}

// logFilename flattens the notebook's repository-relative path into one file
// name, so same-named notebooks in different directories keep separate logs.
func logFilename(item types.WorkItem) string {
	rel := filepath.Join(item.RelDir, item.Name)
	return strings.ReplaceAll(rel, string(filepath.Separator), "-") + ".log"
}

func formatNotebookLog(result *types.NotebookResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("notebook: %s\n", result.Item.Path))
	sb.WriteString(fmt.Sprintf("status: %s\n", result.Status))
	sb.WriteString(fmt.Sprintf("duration: %.1fs\n", result.Duration.Seconds()))
	if result.Error != nil {
		sb.WriteString(fmt.Sprintf("error: %v\n", result.Error))
	}
	if exec := result.Execution; exec != nil {
		sb.WriteString(fmt.Sprintf("exit code: %d\n", exec.ExitCode))
		if exec.OutputPath != "" {
			sb.WriteString(fmt.Sprintf("output artifact: %s\n", exec.OutputPath))
		}
		sb.WriteString("\n--- stdout ---\n")
		sb.WriteString(stripansi.Strip(exec.Stdout))
		sb.WriteString("\n--- stderr ---\n")
		sb.WriteString(stripansi.Strip(exec.Stderr))
		sb.WriteString("\n")
	}
	return sb.String()
}
