// Package orchestrator implements the three-level compaction task tree
// (Keyspace-Op -> Shard-Op -> Table-Op) described in spec.md §4.6: a
// per-shard actor that serializes major/cleanup work "smallest table
// first", and a bounded-parallelism path for the custom job kinds that
// don't need strict per-shard ordering (offstrategy/upgrade/scrub/
// reshape/reshard).
//
// Grounded on _examples/original_source/compaction/task_manager_module.cc's
// wait_for_your_turn/run_table_tasks (a condition-variable "your turn"
// gate, re-evaluated against the smallest remaining table every time
// the actor frees up) and the teacher's subcompaction.go (bounded
// worker-pool fan-out, WaitGroup + first-error-wins, used here for the
// custom-job path).
package orchestrator

import (
	"context"
	"sort"
	"sync"

	"github.com/aalhour/shardstore/internal/tablestate"
)

// TableOp is one unit of per-table work a Shard-Op runs.
type TableOp struct {
	Table *tablestate.State
	// SizeHint orders competing TableOps within a shard; smaller runs
	// first (spec.md §4.6 "smallest table first"), the same bias
	// task_manager_module.cc's major-compaction scheduler uses to keep
	// small tables from starving behind one huge one.
	SizeHint uint64
	Run      func(ctx context.Context) error
}

type pendingOp struct {
	op   TableOp
	turn chan struct{}
}

// ShardActor serializes TableOps submitted to one shard: at most one
// runs at a time, and whenever the actor frees up it re-sorts the
// waiting set and picks the smallest, exactly matching
// wait_for_your_turn's re-evaluation on every release rather than a
// plain FIFO queue.
type ShardActor struct {
	mu      sync.Mutex
	pending []*pendingOp
	busy    bool
	aborted bool
}

// NewShardActor returns an idle actor.
func NewShardActor() *ShardActor {
	return &ShardActor{}
}

// Submit runs op once it becomes the smallest pending TableOp and the
// actor is free, blocking until then or until ctx is cancelled or
// Abort is called (in which case it returns ErrCompactionStopped
// without ever running op).
func (a *ShardActor) Submit(ctx context.Context, op TableOp) error {
	p := &pendingOp{op: op, turn: make(chan struct{})}

	a.mu.Lock()
	if a.aborted {
		a.mu.Unlock()
		return ErrCompactionStopped
	}
	a.pending = append(a.pending, p)
	a.maybeAdvanceLocked()
	a.mu.Unlock()

	select {
	case <-p.turn:
	case <-ctx.Done():
		a.mu.Lock()
		a.removePendingLocked(p)
		a.mu.Unlock()
		return ctx.Err()
	}

	a.mu.Lock()
	if a.aborted {
		a.busy = false
		a.maybeAdvanceLocked()
		a.mu.Unlock()
		return ErrCompactionStopped
	}
	a.mu.Unlock()

	err := op.Run(ctx)

	a.mu.Lock()
	a.busy = false
	a.maybeAdvanceLocked()
	a.mu.Unlock()

	return err
}

// maybeAdvanceLocked picks the smallest pending op and lets it proceed,
// if the actor is currently free. Caller holds a.mu.
func (a *ShardActor) maybeAdvanceLocked() {
	if a.busy || len(a.pending) == 0 {
		return
	}
	sort.Slice(a.pending, func(i, j int) bool { return a.pending[i].op.SizeHint < a.pending[j].op.SizeHint })
	next := a.pending[0]
	a.pending = a.pending[1:]
	a.busy = true
	close(next.turn)
}

func (a *ShardActor) removePendingLocked(p *pendingOp) {
	for i, q := range a.pending {
		if q == p {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			return
		}
	}
}

// Abort releases every waiter with ErrCompactionStopped and prevents
// further Submit calls from running (spec.md §7's distinguished
// "compaction-stopped" condition).
func (a *ShardActor) Abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aborted = true
	for _, p := range a.pending {
		close(p.turn)
	}
	a.pending = nil
}
