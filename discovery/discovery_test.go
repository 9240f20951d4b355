package discovery

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticLister(paths ...string) Lister {
	return func(ctx context.Context, repoDir string) ([]string, error) {
		return paths, nil
	}
}

func TestListExcludesMatchingNotebooks(t *testing.T) {
	items, err := List(context.Background(), Config{
		RepoDir:  "/repo",
		Excludes: []string{"**/vendor/*.ipynb"},
		Lister:   staticLister("a.ipynb", "vendor/b.ipynb"),
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].Name)
	assert.Equal(t, "/repo/a.ipynb", items[0].Path)
}

func TestListUnionSemantics(t *testing.T) {
	// A notebook matching several patterns is excluded once; matching any
	// single pattern is enough.
	items, err := List(context.Background(), Config{
		RepoDir: "/repo",
		Excludes: []string{
			"**/google/*.ipynb",
			"docs/**/*.ipynb",
			"examples/*fidelity*",
		},
		Lister: staticLister(
			"docs/google/auth.ipynb", // matches two patterns
			"docs/deep/nested/guide.ipynb",
			"examples/xeb_fidelity.ipynb",
			"examples/basics.ipynb",
			"google/top.ipynb", // leading ** matches zero directories too
		),
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "/repo/examples/basics.ipynb", items[0].Path)
}

func TestListSortedAndDeterministic(t *testing.T) {
	cfg := Config{
		RepoDir: "/repo",
		Lister:  staticLister("z.ipynb", "a.ipynb", "m/k.ipynb"),
	}

	first, err := List(context.Background(), cfg)
	require.NoError(t, err)
	second, err := List(context.Background(), cfg)
	require.NoError(t, err)

	require.Equal(t, first, second)
	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].Path, first[i].Path)
	}
}

func TestListNoneMatchExcludes(t *testing.T) {
	excludes := []string{"**/vendor/*.ipynb", "examples/*fidelity*"}
	items, err := List(context.Background(), Config{
		RepoDir:  "/repo",
		Excludes: excludes,
		Lister:   staticLister("a.ipynb", "vendor/b.ipynb", "examples/xeb_fidelity.ipynb"),
	})
	require.NoError(t, err)

	for _, item := range items {
		rel, relErr := filepath.Rel("/repo", item.Path)
		require.NoError(t, relErr)
		assert.False(t, excluded(rel, excludes), "discovered notebook %s matches an exclusion", rel)
	}
}

func TestListListerFailure(t *testing.T) {
	wantErr := errors.New("not a git repository")
	_, err := List(context.Background(), Config{
		RepoDir: "/repo",
		Lister: func(ctx context.Context, repoDir string) ([]string, error) {
			return nil, wantErr
		},
	})
	require.Error(t, err)

	var discErr *Error
	require.ErrorAs(t, err, &discErr)
	assert.ErrorIs(t, err, wantErr)
}

func TestGitLister(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	repo := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init", "-q")

	require.NoError(t, os.MkdirAll(filepath.Join(repo, "docs"), 0o755))
	for _, f := range []string{"a.ipynb", "docs/b.ipynb", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(repo, f), []byte("{}"), 0o644))
	}
	run("add", ".")

	paths, err := GitLister("git")(context.Background(), repo)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.ipynb", "docs/b.ipynb"}, paths)
}

func TestGitListerOutsideCheckout(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	_, err := GitLister("git")(context.Background(), dir)
	require.Error(t, err)
}

func TestLoadExcludes(t *testing.T) {
	t.Run("defaults only", func(t *testing.T) {
		patterns, err := LoadExcludes("")
		require.NoError(t, err)
		assert.Equal(t, DefaultExcludes, patterns)
	})

	t.Run("file appended to defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "excludes.yaml")
		require.NoError(t, os.WriteFile(path, []byte("excludes:\n  - \"examples/*fidelity*\"\n"), 0o644))

		patterns, err := LoadExcludes(path)
		require.NoError(t, err)
		assert.Contains(t, patterns, "examples/*fidelity*")
		assert.Subset(t, patterns, DefaultExcludes)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadExcludes(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "excludes.yaml")
		require.NoError(t, os.WriteFile(path, []byte("excludes:\n  - \"[\"\n"), 0o644))

		_, err := LoadExcludes(path)
		require.Error(t, err)
	})
}
