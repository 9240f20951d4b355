package runner

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notebook-infra/nb-acceptor/types"
)

func TestParallelExecutionCollectsAllResults(t *testing.T) {
	repo, items := fakeRepo(t,
		"a.ipynb",
		"b.ipynb",
		"docs/c.ipynb",
		"docs/d.ipynb",
		"examples/e.ipynb",
	)

	nr, err := NewNotebookRunner(Config{
		Items:       items,
		Mode:        ModeInPlace,
		RepoDir:     repo,
		Engine:      writeEngine(t, 0),
		Concurrency: 4,
	})
	require.NoError(t, err)

	r := nr.(*runner)
	r.stdout = io.Discard
	r.stderr = io.Discard

	result, err := r.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusPass, result.Status)
	assert.Equal(t, len(items), result.Stats.Total)
	assert.Equal(t, len(items), result.Stats.Passed)

	// Results come back sorted by path regardless of completion order.
	for i := 1; i < len(result.Notebooks); i++ {
		assert.Less(t, result.Notebooks[i-1].Item.Path, result.Notebooks[i].Item.Path)
	}
}

func TestParallelFailureDoesNotStopSiblings(t *testing.T) {
	repo, items := fakeRepo(t, "a.ipynb", "b.ipynb", "c.ipynb")

	nr, err := NewNotebookRunner(Config{
		Items:       items,
		Mode:        ModeInPlace,
		RepoDir:     repo,
		Engine:      writeEngine(t, 1),
		Concurrency: 3,
	})
	require.NoError(t, err)

	r := nr.(*runner)
	r.stdout = io.Discard
	r.stderr = io.Discard

	result, err := r.RunAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.TestStatusFail, result.Status)
	assert.Equal(t, 3, result.Stats.Total, "every sibling still ran")
	assert.Equal(t, 3, result.Stats.Failed)
	assert.Len(t, result.Failed(), 3)
}

func TestParallelExecutorEmptyWorkList(t *testing.T) {
	repo, _ := fakeRepo(t)

	nr, err := NewNotebookRunner(Config{
		Mode:        ModeInPlace,
		RepoDir:     repo,
		Engine:      writeEngine(t, 0),
		Concurrency: 2,
	})
	require.NoError(t, err)

	pe := NewParallelExecutor(nr.(*runner), 2)
	results, err := pe.ExecuteNotebooks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestParallelExecutorContextCancellation(t *testing.T) {
	repo, items := fakeRepo(t, "a.ipynb", "b.ipynb")

	nr, err := NewNotebookRunner(Config{
		Items:       items,
		Mode:        ModeInPlace,
		RepoDir:     repo,
		Engine:      writeEngine(t, 0),
		Concurrency: 2,
	})
	require.NoError(t, err)

	r := nr.(*runner)
	r.stdout = io.Discard
	r.stderr = io.Discard

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pe := NewParallelExecutor(r, 2)
	// A cancelled context must not deadlock the pool.
	_, _ = pe.ExecuteNotebooks(ctx, items)
}

func TestNewParallelExecutorValidation(t *testing.T) {
	repo, _ := fakeRepo(t)
	nr, err := NewNotebookRunner(Config{Mode: ModeInPlace, RepoDir: repo})
	require.NoError(t, err)

	assert.Panics(t, func() { NewParallelExecutor(nil, 1) })
	assert.Panics(t, func() { NewParallelExecutor(nr.(*runner), 0) })
}
