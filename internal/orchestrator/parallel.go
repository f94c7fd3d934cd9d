package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
)

// RunBounded runs ops with at most maxConcurrent running at once,
// waiting for every op to finish — including the ones still running
// after the first failure — before returning, and then surfacing only
// the first error observed (spec.md §4.6: "error propagation waits for
// siblings to drain before surfacing the first error"). Used for the
// custom job kinds (offstrategy/upgrade/scrub/reshape/reshard) that
// don't need the strict per-shard serialization ShardActor enforces.
//
// Grounded on the teacher's subcompaction.go
// (ParallelCompactionJob.Run's WaitGroup + atomic.Pointer[error]
// first-error-wins pattern), generalized from "N subcompactions of one
// job" to "N independent table ops of one keyspace-wide custom-job
// request".
func RunBounded(ctx context.Context, maxConcurrent int, ops []func(ctx context.Context) error) error {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var firstErr atomic.Pointer[error]

	for _, op := range ops {
		op := op
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			if e := firstErr.Load(); e != nil {
				return *e
			}
			return ctx.Err()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if err := op(ctx); err != nil {
				firstErr.CompareAndSwap(nil, &err)
			}
		}()
	}

	wg.Wait()
	if e := firstErr.Load(); e != nil {
		return *e
	}
	return nil
}
