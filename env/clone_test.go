package env

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBase lays out a minimal environment tree: an activation script, a fake
// interpreter shim and an installed package marker.
func fakeBase(t *testing.T) *BaseEnv {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "base-env")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib", "site-packages", "papermill"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "activate"), []byte("export VIRTUAL_ENV=1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "python3"), []byte("#!/bin/sh\n"), 0o755))
	if runtime.GOOS != "windows" {
		require.NoError(t, os.Symlink("python3", filepath.Join(dir, "bin", "python")))
	}
	return &BaseEnv{Dir: dir}
}

func TestCloneCopiesTree(t *testing.T) {
	base := fakeBase(t)
	dest := filepath.Join(t.TempDir(), "clone")

	clone, err := Clone(base, dest)
	require.NoError(t, err)
	assert.Equal(t, dest, clone.Dir)
	assert.Equal(t, base.Dir, clone.Base)

	assert.FileExists(t, clone.Activate())
	assert.DirExists(t, filepath.Join(dest, "lib", "site-packages", "papermill"))

	info, err := os.Stat(filepath.Join(dest, "bin", "python3"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "interpreter shim should stay executable")

	if runtime.GOOS != "windows" {
		linkTarget, err := os.Readlink(filepath.Join(dest, "bin", "python"))
		require.NoError(t, err)
		assert.Equal(t, "python3", linkTarget, "symlinks are copied shallow")
	}
}

func TestCloneDestinationExists(t *testing.T) {
	base := fakeBase(t)
	dest := t.TempDir()

	_, err := Clone(base, dest)
	require.Error(t, err)

	var cloneErr *CloneError
	require.ErrorAs(t, err, &cloneErr)
}

func TestClonesAreIndependent(t *testing.T) {
	base := fakeBase(t)
	tmp := t.TempDir()

	first, err := Clone(base, filepath.Join(tmp, "clone-a"))
	require.NoError(t, err)
	second, err := Clone(base, filepath.Join(tmp, "clone-b"))
	require.NoError(t, err)

	// Mutate the first clone's installed package state.
	extra := filepath.Join(first.Dir, "lib", "site-packages", "extra-pkg")
	require.NoError(t, os.MkdirAll(extra, 0o755))
	require.NoError(t, os.RemoveAll(filepath.Join(first.Dir, "lib", "site-packages", "papermill")))

	// Neither the base nor the sibling clone observes the mutation.
	assert.NoDirExists(t, filepath.Join(base.Dir, "lib", "site-packages", "extra-pkg"))
	assert.NoDirExists(t, filepath.Join(second.Dir, "lib", "site-packages", "extra-pkg"))
	assert.DirExists(t, filepath.Join(base.Dir, "lib", "site-packages", "papermill"))
	assert.DirExists(t, filepath.Join(second.Dir, "lib", "site-packages", "papermill"))
}

func TestCloneRemove(t *testing.T) {
	base := fakeBase(t)
	dest := filepath.Join(t.TempDir(), "clone")

	clone, err := Clone(base, dest)
	require.NoError(t, err)
	require.NoError(t, clone.Remove())
	assert.NoDirExists(t, dest)
}
