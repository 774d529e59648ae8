package tscalias

import (
	"context"
	"sync"

	"github.com/ThomasWhyne/tsc-alias/internal/store"
)

// rewriteParallel processes files with a worker pool:
//
//	Phase A (serial):   queue every file.
//	Phase B (parallel): read, scan, resolve and write each file.
//	Phase C (serial):   collect results in input order for the caller to
//	                    commit.
//
// Workers share only the path cache and the pipeline. Once ctx is cancelled
// no new file is picked up; files already in progress complete.
func (e *Engine) rewriteParallel(ctx context.Context, files []string, known map[string]store.FileState) []fileResult {
	if len(files) == 0 {
		return nil
	}

	// ---- Phase A: queue ----
	type workItem struct {
		idx  int
		path string
	}
	workCh := make(chan workItem, len(files))
	for i, f := range files {
		workCh <- workItem{idx: i, path: f}
	}
	close(workCh)

	// ---- Phase B: parallel rewrite ----
	numWorkers := e.workers
	if numWorkers < 1 {
		numWorkers = defaultWorkers()
	}
	numWorkers = min(numWorkers, len(files))

	type result struct {
		idx int
		res fileResult
	}
	resultCh := make(chan result, len(files))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range workCh {
				if ctx.Err() != nil {
					return
				}
				resultCh <- result{idx: item.idx, res: e.processFile(ctx, item.path, known)}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// ---- Phase C: collect ----
	slots := make([]*fileResult, len(files))
	for r := range resultCh {
		res := r.res
		slots[r.idx] = &res
	}
	results := make([]fileResult, 0, len(files))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results
}
