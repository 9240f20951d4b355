package env

import (
	"fmt"
	"os"
	"path/filepath"

	cp "github.com/otiai10/copy"

	"github.com/notebook-infra/nb-acceptor/metrics"
)

// CloneError indicates a per-notebook environment copy failed. It fails only
// the notebook it was made for; sibling notebooks are unaffected.
type CloneError struct {
	Err error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("clone error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *CloneError) Unwrap() error {
	return e.Err
}

// ClonedEnv is an independent copy of a base environment, exclusively owned
// by the notebook execution that created it. Mutating a clone is never
// observable in the base or in sibling clones.
type ClonedEnv struct {
	Dir  string
	Base string
}

// Activate returns the path of the activation script inside the clone.
func (c *ClonedEnv) Activate() string {
	return filepath.Join(c.Dir, "bin", "activate")
}

// Remove deletes the clone's directory tree.
func (c *ClonedEnv) Remove() error {
	return os.RemoveAll(c.Dir)
}

// Clone copies the base environment's whole tree to destination, preserving
// symlinks and permissions so the interpreter shims and package state match
// the base without re-running installation. The destination must not exist.
func Clone(base *BaseEnv, destination string) (*ClonedEnv, error) {
	if _, err := os.Stat(destination); err == nil {
		metrics.RecordCloneError()
		return nil, &CloneError{Err: fmt.Errorf("destination %s already exists", destination)}
	}

	opts := cp.Options{
		// Virtualenvs symlink their interpreter; copy the links, not the
		// interpreter they point at.
		OnSymlink: func(string) cp.SymlinkAction { return cp.Shallow },
	}
	if err := cp.Copy(base.Dir, destination, opts); err != nil {
		metrics.RecordCloneError()
		return nil, &CloneError{Err: fmt.Errorf("failed to copy %s to %s: %w", base.Dir, destination, err)}
	}

	return &ClonedEnv{Dir: destination, Base: base.Dir}, nil
}
