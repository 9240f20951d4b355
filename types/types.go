package types

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// NotebookSuffix is the file suffix used to identify notebook documents.
const NotebookSuffix = ".ipynb"

// TestStatus represents the possible states of a notebook execution
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
)

// WorkItem identifies one notebook scheduled for execution.
// It is created during discovery and immutable afterwards.
type WorkItem struct {
	Path       string // Absolute path to the notebook
	Name       string // Base name without the .ipynb suffix
	RelDir     string // Directory of the notebook relative to the repository root
	OutputPath string // Artifact path, relative to the repository root
}

// NewWorkItem derives a WorkItem from a notebook path relative to repoDir.
// The output artifact path follows the out/<rel-dir>/<name>.out.ipynb convention.
func NewWorkItem(repoDir, relPath string) WorkItem {
	name := strings.TrimSuffix(filepath.Base(relPath), NotebookSuffix)
	relDir := filepath.Dir(relPath)
	if relDir == "." {
		relDir = ""
	}
	return WorkItem{
		Path:       filepath.Join(repoDir, relPath),
		Name:       name,
		RelDir:     relDir,
		OutputPath: filepath.Join("out", relDir, name+".out"+NotebookSuffix),
	}
}

// File returns the notebook's file name including suffix.
func (w WorkItem) File() string {
	return filepath.Base(w.Path)
}

// ExecutionResult captures the raw outcome of one engine subprocess.
// Non-zero exit is data here, not an error; callers inspect it explicitly.
type ExecutionResult struct {
	ExitCode   int
	Stdout     string
	Stderr     string
	OutputPath string // Empty when no artifact was materialized
}

// Success reports whether the execution exited cleanly.
func (r *ExecutionResult) Success() bool {
	return r != nil && r.ExitCode == 0
}

// NotebookResult captures the aggregated outcome of one work item.
type NotebookResult struct {
	Item      WorkItem
	Status    TestStatus
	Error     error
	Duration  time.Duration
	Execution *ExecutionResult
	CloneDir  string // Isolated-mode clone location, kept on failure for inspection
}

// String returns a one-line summary suitable for logs.
func (r *NotebookResult) String() string {
	return fmt.Sprintf("%s: %s (%.1fs)", r.Item.Name, r.Status, r.Duration.Seconds())
}
