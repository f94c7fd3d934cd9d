// keyspace.go implements the top two levels of the task tree: Keyspace-Op
// fans out to every Shard-Op in parallel (shards share no mutable
// state, spec.md §4.6 invariant), and each Shard-Op either serializes
// its Table-Ops through a ShardActor (major/cleanup) or runs them with
// bounded parallelism through a permits.Controller (the custom job
// kinds).
package orchestrator

import (
	"context"

	"github.com/aalhour/shardstore/internal/permits"
	"github.com/aalhour/shardstore/internal/strategy"
	"github.com/aalhour/shardstore/internal/tablestate"
)

// Shard is one shard's worth of table state plus its serialization
// actor and admission controller.
type Shard struct {
	Actor   *ShardActor
	Permits *permits.Controller
	Tables  []*tablestate.State
}

// NewShard returns a Shard ready to run ops over tables.
func NewShard(tables []*tablestate.State, maxConcurrentRegular int) *Shard {
	return &Shard{
		Actor:   NewShardActor(),
		Permits: permits.NewController(maxConcurrentRegular),
		Tables:  tables,
	}
}

// Keyspace is the top-level fan-out point: every Shard runs
// independently and concurrently.
type Keyspace struct {
	Shards []*Shard
}

// sizeHint is the SR set's total accountable size, used to order
// major/cleanup Table-Ops "smallest table first" (spec.md §4.6).
func sizeHint(t *tablestate.State) uint64 {
	return t.Set().TotalBytes()
}

// RunMajor runs a full major compaction (Strategy.MajorJob) against
// every table in every shard, serialized per shard smallest-first,
// shards running concurrently.
func (ks *Keyspace) RunMajor(ctx context.Context, runJob func(ctx context.Context, t *tablestate.State, d strategy.Descriptor) error) error {
	return ks.runSerializedAcrossShards(ctx, func(t *tablestate.State) strategy.Descriptor {
		return t.Strategy().MajorJob(t, t.Main())
	}, runJob)
}

// RunCleanup runs Strategy.CleanupJobs against every table, same
// scheduling shape as RunMajor.
func (ks *Keyspace) RunCleanup(ctx context.Context, runJob func(ctx context.Context, t *tablestate.State, d strategy.Descriptor) error) error {
	shardOps := make([]func(context.Context) error, len(ks.Shards))
	for i, sh := range ks.Shards {
		sh := sh
		shardOps[i] = func(ctx context.Context) error {
			tableOps := make([]func(context.Context) error, 0, len(sh.Tables))
			for _, t := range sh.Tables {
				t := t
				for _, d := range t.Strategy().CleanupJobs(t, t.Main()) {
					d := d
					tableOps = append(tableOps, func(ctx context.Context) error {
						return sh.Actor.Submit(ctx, TableOp{
							Table:    t,
							SizeHint: sizeHint(t),
							Run:      func(ctx context.Context) error { return runJob(ctx, t, d) },
						})
					})
				}
			}
			return RunBounded(ctx, len(tableOps), tableOps)
		}
	}
	return RunBounded(ctx, len(shardOps), shardOps)
}

// runSerializedAcrossShards is RunMajor's shape, parameterized over how
// a Descriptor is derived per table (major uses the whole main set;
// other one-descriptor-per-table ops reuse this too).
func (ks *Keyspace) runSerializedAcrossShards(ctx context.Context, pick func(*tablestate.State) strategy.Descriptor, runJob func(ctx context.Context, t *tablestate.State, d strategy.Descriptor) error) error {
	shardOps := make([]func(context.Context) error, len(ks.Shards))
	for i, sh := range ks.Shards {
		sh := sh
		shardOps[i] = func(ctx context.Context) error {
			tableOps := make([]func(context.Context) error, 0, len(sh.Tables))
			for _, t := range sh.Tables {
				t := t
				tableOps = append(tableOps, func(ctx context.Context) error {
					return sh.Actor.Submit(ctx, TableOp{
						Table:    t,
						SizeHint: sizeHint(t),
						Run: func(ctx context.Context) error {
							d := pick(t)
							if d.Empty() {
								return nil
							}
							return runJob(ctx, t, d)
						},
					})
				})
			}
			return RunBounded(ctx, len(tableOps), tableOps)
		}
	}
	return RunBounded(ctx, len(shardOps), shardOps)
}

// RunCustom runs a custom job kind (offstrategy/upgrade/scrub/reshape)
// against every table in the keyspace with bounded parallelism gated by
// each shard's per-class semaphore, bypassing the ShardActor entirely —
// custom jobs don't compete with major/cleanup for the "your turn" gate
// (spec.md §4.6).
func (ks *Keyspace) RunCustom(ctx context.Context, class permits.JobClass, maxConcurrent int, run func(ctx context.Context, t *tablestate.State) error) error {
	var tableOps []func(context.Context) error
	for _, sh := range ks.Shards {
		sh := sh
		for _, t := range sh.Tables {
			t := t
			tableOps = append(tableOps, func(ctx context.Context) error {
				if err := sh.Permits.AcquireCustom(ctx, class); err != nil {
					return err
				}
				defer sh.Permits.ReleaseCustom(class)
				return run(ctx, t)
			})
		}
	}
	return RunBounded(ctx, maxConcurrent, tableOps)
}

// Abort broadcasts the distinguished "compaction-stopped" condition to
// every shard, releasing anything blocked in a ShardActor or in a
// Controller's AcquireRegular (spec.md §7). Callers waiting in
// AcquireCustom return only when their own ctx is done.
func (ks *Keyspace) Abort() {
	for _, sh := range ks.Shards {
		sh.Actor.Abort()
		sh.Permits.Shutdown()
	}
}
