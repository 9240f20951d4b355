// Package discovery enumerates the notebooks tracked in a repository and
// filters them through a set of exclusion globs, producing the deterministic
// work list the runner executes.
package discovery

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ethereum/go-ethereum/log"

	"github.com/notebook-infra/nb-acceptor/types"
)

// Error indicates that the repository file listing could not be produced.
// It is fatal to the whole session: no work items exist without it.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("discovery error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Err
}

// Lister produces the relative paths of all tracked notebooks in repoDir.
type Lister func(ctx context.Context, repoDir string) ([]string, error)

// Config holds discovery configuration
type Config struct {
	Log      log.Logger
	RepoDir  string   // Repository root to discover notebooks in
	Excludes []string // Glob patterns (doublestar syntax) to skip
	Lister   Lister   // Defaults to git ls-files
}

// List returns one WorkItem per tracked, non-excluded notebook, sorted
// lexicographically by absolute path. The ordering must be identical across
// repeated invocations and across worker processes; a non-deterministic
// listing makes parallel workers disagree about their parametrization.
func List(ctx context.Context, cfg Config) ([]types.WorkItem, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	lister := cfg.Lister
	if lister == nil {
		lister = GitLister("git")
	}

	tracked, err := lister(ctx, cfg.RepoDir)
	if err != nil {
		return nil, &Error{Err: err}
	}

	var kept []string
	for _, rel := range tracked {
		if rel == "" {
			continue
		}
		if excluded(rel, cfg.Excludes) {
			cfg.Log.Debug("Excluding notebook", "path", rel)
			continue
		}
		kept = append(kept, rel)
	}

	items := make([]types.WorkItem, 0, len(kept))
	for _, rel := range kept {
		items = append(items, types.NewWorkItem(cfg.RepoDir, rel))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })

	cfg.Log.Info("Discovered notebooks", "tracked", len(tracked), "excluded", len(tracked)-len(kept), "selected", len(items))
	return items, nil
}

// excluded reports whether rel matches at least one exclusion pattern.
// A notebook matching any pattern is excluded (set union semantics).
func excluded(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			// A malformed pattern never matches; surface it where the
			// pattern list is loaded, not per-path.
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// GitLister returns a Lister backed by `git ls-files`, restricted to the
// notebook suffix. Output is expected as newline-separated relative paths.
func GitLister(gitBinary string) Lister {
	return func(ctx context.Context, repoDir string) ([]string, error) {
		cmd := exec.CommandContext(ctx, gitBinary, "ls-files", "--", "*"+types.NotebookSuffix)
		cmd.Dir = repoDir
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		out, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("git ls-files failed (is %s a git checkout?): %w: %s",
				repoDir, err, strings.TrimSpace(stderr.String()))
		}
		return strings.Split(strings.TrimRight(string(out), "\n"), "\n"), nil
	}
}
