package runner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/notebook-infra/nb-acceptor/types"
)

// ResultStats tracks counts for one run
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	StartTime time.Time
	EndTime   time.Time
}

// RunnerResult captures the complete outcome of one run
type RunnerResult struct {
	RunID     string
	Notebooks []*types.NotebookResult
	Status    types.TestStatus
	Duration  time.Duration
	Stats     ResultStats
}

func newRunnerResult(runID string, start time.Time) *RunnerResult {
	return &RunnerResult{
		RunID:  runID,
		Status: types.TestStatusPass,
		Stats:  ResultStats{StartTime: start},
	}
}

func (r *RunnerResult) add(res *types.NotebookResult) {
	r.Notebooks = append(r.Notebooks, res)
	r.Stats.Total++
	switch res.Status {
	case types.TestStatusPass:
		r.Stats.Passed++
	default:
		r.Stats.Failed++
		r.Status = types.TestStatusFail
	}
}

func (r *RunnerResult) finalize(end time.Time) {
	r.Stats.EndTime = end
	r.Duration = end.Sub(r.Stats.StartTime)
	sort.Slice(r.Notebooks, func(i, j int) bool {
		return r.Notebooks[i].Item.Path < r.Notebooks[j].Item.Path
	})
}

// Failed returns the failing notebook results in listing order.
func (r *RunnerResult) Failed() []*types.NotebookResult {
	var failed []*types.NotebookResult
	for _, res := range r.Notebooks {
		if res.Status == types.TestStatusFail {
			failed = append(failed, res)
		}
	}
	return failed
}

// String returns a human-readable summary, naming every failed notebook.
func (r *RunnerResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s: %d/%d notebooks passed in %.1fs",
		r.RunID, r.Stats.Passed, r.Stats.Total, r.Duration.Seconds())
	for _, res := range r.Failed() {
		fmt.Fprintf(&sb, "\n  %v", res.Error)
	}
	return sb.String()
}
