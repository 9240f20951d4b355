package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/notebook-infra/nb-acceptor/types"
)

// notebookWorkResult contains the outcome of one work item as produced by a
// worker. Err is set only for infrastructure failures; engine failures live
// inside Result.
type notebookWorkResult struct {
	Item   types.WorkItem
	Result *types.NotebookResult
	Err    error
}

// ParallelExecutor fans work items out across a pool of workers. Notebooks
// share no mutable state once the base environment exists, so no locking is
// needed during execution; execution order carries no guarantees.
type ParallelExecutor struct {
	runner      *runner
	concurrency int
	log         log.Logger
}

// NewParallelExecutor creates a new parallel notebook executor
func NewParallelExecutor(runner *runner, concurrency int) *ParallelExecutor {
	if runner == nil {
		panic("runner cannot be nil")
	}
	if concurrency < 1 {
		panic("concurrency must be positive")
	}

	if concurrency > 32 {
		runner.log.Warn("Very high concurrency requested", "concurrency", concurrency,
			"recommendation", "Consider using lower values to avoid resource exhaustion")
	}

	return &ParallelExecutor{
		runner:      runner,
		concurrency: concurrency,
		log:         runner.log.New("component", "parallel-executor"),
	}
}

// ExecuteNotebooks runs the provided work items across the worker pool and
// returns every result. One notebook's failure never prevents the others
// from running.
func (pe *ParallelExecutor) ExecuteNotebooks(ctx context.Context, items []types.WorkItem) ([]*types.NotebookResult, error) {
	if len(items) == 0 {
		pe.log.Debug("No work items to execute")
		return nil, nil
	}

	pe.log.Info("Starting parallel notebook execution", "totalNotebooks", len(items), "concurrency", pe.concurrency)

	bufferSize := min(pe.concurrency*2, 100)
	workChan := make(chan types.WorkItem, bufferSize)
	resultChan := make(chan notebookWorkResult, bufferSize)

	var wg sync.WaitGroup
	for i := 0; i < pe.concurrency; i++ {
		wg.Add(1)
		go pe.worker(ctx, &wg, workChan, resultChan)
	}

	go func() {
		defer close(workChan)
		for _, item := range items {
			select {
			case workChan <- item:
			case <-ctx.Done():
				pe.log.Debug("Context cancelled while sending work items")
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var results []*types.NotebookResult
	var executionErrors []error
	for workResult := range resultChan {
		if workResult.Err != nil {
			pe.log.Error("Notebook execution failed", "notebook", workResult.Item.Name, "error", workResult.Err)
			executionErrors = append(executionErrors, fmt.Errorf("notebook %s: %w", workResult.Item.Name, workResult.Err))
			continue
		}
		results = append(results, workResult.Result)
	}

	if len(executionErrors) > 0 {
		return nil, fmt.Errorf("parallel execution hit %d infrastructure errors, first: %w",
			len(executionErrors), executionErrors[0])
	}

	pe.log.Info("Parallel notebook execution completed", "totalNotebooks", len(items))
	return results, nil
}

// worker is a goroutine that processes notebook work items. It handles
// context cancellation on both channel operations.
func (pe *ParallelExecutor) worker(ctx context.Context, wg *sync.WaitGroup, workChan <-chan types.WorkItem, resultChan chan<- notebookWorkResult) {
	defer wg.Done()

	workerID := fmt.Sprintf("worker-%p", wg)
	pe.log.Debug("Worker starting", "workerID", workerID)
	defer pe.log.Debug("Worker exiting", "workerID", workerID)

	for {
		select {
		case item, ok := <-workChan:
			if !ok {
				return
			}

			pe.log.Debug("Worker processing notebook", "workerID", workerID, "notebook", item.Name)
			result, err := pe.runner.RunNotebook(ctx, item)

			select {
			case resultChan <- notebookWorkResult{Item: item, Result: result, Err: err}:
			case <-ctx.Done():
				pe.log.Debug("Context cancelled while sending result", "workerID", workerID, "notebook", item.Name)
				return
			}

		case <-ctx.Done():
			pe.log.Debug("Worker received context cancellation", "workerID", workerID)
			return
		}
	}
}
