package passlens

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jward/passlens/internal/store"
)

// workItem holds everything one batch worker needs.
type workItem struct {
	req   AnalyzeRequest
	batch *store.BatchedStore

	result *Result
	err    error
}

// AnalyzeFiles analyzes several source files. Each file's stage chain is
// sequential; only independent files run concurrently.
//
//	Phase A (parallel): compile, run passes and classify each file into its
//	                    own BatchedStore, bounded by WithWorkers.
//	Phase B (serial):   commit every successful batch to SQLite in input order.
//
// Results are returned in input order with nil entries for failed files.
// The returned error joins the first failure with a count of all of them.
func (e *Engine) AnalyzeFiles(ctx context.Context, reqs []AnalyzeRequest) ([]*Result, error) {
	items := make([]*workItem, len(reqs))
	for i, req := range reqs {
		items[i] = &workItem{req: req, batch: store.NewBatchedStore(e.store)}
	}

	if e.useParallel && len(items) > 1 {
		e.analyzeParallel(ctx, items)
	} else {
		for _, item := range items {
			item.result, item.err = e.analyze(ctx, e.runtime, item.req, item.batch)
		}
	}

	results := make([]*Result, len(items))
	var errs []error
	for i, item := range items {
		if item.err != nil {
			errs = append(errs, fmt.Errorf("analyze %s: %w", item.req.Path, item.err))
			continue
		}
		e.logger.Debug("committing batch", "path", item.req.Path, "rows", item.batch.Len())
		if err := e.store.CommitBatch(item.batch); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", item.req.Path, err))
			continue
		}
		results[i] = item.result
	}

	if len(errs) > 0 {
		return results, fmt.Errorf("batch analysis had %d error(s): %w", len(errs), errs[0])
	}
	return results, nil
}

// analyzeParallel fills in every item's result or error. Per-file failures
// do not cancel the other files, so the group itself never fails.
func (e *Engine) analyzeParallel(ctx context.Context, items []*workItem) {
	g := new(errgroup.Group)
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}
	for _, item := range items {
		g.Go(func() error {
			// The BatchedStore per item keeps writes isolated.
			rt := e.newRuntime()
			item.result, item.err = e.analyze(ctx, rt, item.req, item.batch)
			return nil
		})
	}
	_ = g.Wait()
}
