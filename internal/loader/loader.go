// Package loader implements the five-stage pipeline that brings a
// table's on-disk SRs into a running shard after a fresh process start,
// a bulk load, or a topology change (spec.md §4.7): scan & open,
// reshard distribution, reshard execution, reshape, and publish.
//
// Grounded on _examples/original_source/replica/distributed_loader.cc
// (distribute_reshard_jobs / run_resharding_jobs / reshard / reshape
// naming and staging), using internal/vfs for directory scanning the
// way the teacher's own recovery path (internal/manifest) scans for
// TOC/MANIFEST files at open time.
package loader

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aalhour/shardstore/internal/sharder"
	"github.com/aalhour/shardstore/internal/sr"
	"github.com/aalhour/shardstore/internal/strategy"
	"github.com/aalhour/shardstore/internal/tablestate"
	"github.com/aalhour/shardstore/internal/vfs"
)

// tocSuffix marks a directory entry as a Sorted Run's table-of-contents
// file, the presence test the scan stage uses to decide an SR is
// complete and safe to load (spec.md §4.7 stage 1: "only SRs with a
// durable TOC are loaded; a generation directory missing one is either
// mid-write or mid-delete and is skipped").
const tocSuffix = "-TOC.txt"

// Opener constructs the in-memory SortedRun for a generation directory
// already confirmed complete by its TOC. Reading the actual SSTable
// metadata (size, timestamps, tombstone stats) is storage-layer work
// outside this module's scope; Opener is the seam a real storage layer
// plugs into.
type Opener func(ctx context.Context, fs vfs.FS, dir string, generationID uint64) (*sr.SortedRun, error)

// Scan lists root's entries and opens each one named
// "<generation>-TOC.txt" via open, passing that entry's path; entries
// without that name are skipped, not failed on (spec.md §4.7 stage 1).
func Scan(ctx context.Context, fs vfs.FS, root string, open Opener) ([]*sr.SortedRun, error) {
	entries, err := fs.ListDir(root)
	if err != nil {
		return nil, err
	}
	var out []*sr.SortedRun
	for _, name := range entries {
		genID, ok := generationFromTOC(name)
		if !ok {
			continue
		}
		s, err := open(ctx, fs, filepath.Join(root, name), genID)
		if err != nil {
			return nil, err
		}
		if s != nil {
			out = append(out, s)
		}
	}
	return out, nil
}

// generationFromTOC parses "<generation>-TOC.txt" into its generation
// id. Returns ok=false for any entry that isn't a TOC file.
func generationFromTOC(name string) (uint64, bool) {
	if !strings.HasSuffix(name, tocSuffix) {
		return 0, false
	}
	numPart := strings.TrimSuffix(name, tocSuffix)
	n, err := strconv.ParseUint(numPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Distribute splits scanned into single-owner SRs (returned as-is,
// already belonging to this shard) and shared SRs assigned by
// sharder.DistributeReshardJobs (spec.md §4.7 stage 2).
func Distribute(scanned []*sr.SortedRun, shardCount int) (owned []*sr.SortedRun, workloads []sharder.Workload) {
	var shared []*sr.SortedRun
	for _, s := range scanned {
		if s.Shared() {
			shared = append(shared, s)
		} else {
			owned = append(owned, s)
		}
	}
	workloads = sharder.DistributeReshardJobs(shared, shardCount)
	return owned, workloads
}

// Resharder rewrites one shard's slice of a shared SR into a new,
// single-owner SR for that shard. Like Opener, the actual data
// rewrite is storage-layer work outside this module.
type Resharder func(ctx context.Context, shard sr.ShardID, batch []*sr.SortedRun) ([]*sr.SortedRun, error)

// RunReshard executes stage 3: each shard's assigned shared SRs are
// split into ceil(n/maxThreshold) batches and rewritten one batch at a
// time via resharder (spec.md §4.7 stage 3).
func RunReshard(ctx context.Context, w sharder.Workload, maxThreshold int, resharder Resharder) ([]*sr.SortedRun, error) {
	var out []*sr.SortedRun
	for _, batch := range sharder.SplitIntoJobs(w.Assigned, maxThreshold) {
		produced, err := resharder(ctx, w.Shard, batch)
		if err != nil {
			return out, err
		}
		out = append(out, produced...)
	}
	return out, nil
}

// RunReshape executes stage 4: repeatedly asks the strategy for a
// reshape job over the current staging set and applies compactFn to
// it, until the strategy reports no further work (spec.md §4.7 stage 4
// "reshape loop"). filter, if non-nil, excludes SRs from the reshape
// loop entirely (e.g. repair-origin SRs during boot-time reshape,
// which must not be merged with ordinary data before repair has had a
// chance to run against them) — excluded SRs are carried through
// untouched and reappear in the result alongside whatever the loop
// produced.
func RunReshape(ctx context.Context, strat strategy.Strategy, staging []*sr.SortedRun, mode strategy.ReshapeMode, filter func(*sr.SortedRun) bool, compactFn func(ctx context.Context, d strategy.Descriptor) ([]*sr.SortedRun, error)) ([]*sr.SortedRun, error) {
	var excluded, current []*sr.SortedRun
	for _, s := range staging {
		if filter != nil && !filter(s) {
			excluded = append(excluded, s)
			continue
		}
		current = append(current, s)
	}
	for {
		d := strat.ReshapeJob(current, mode)
		if d.Empty() {
			return append(current, excluded...), nil
		}
		outputs, err := compactFn(ctx, d)
		if err != nil {
			return append(current, excluded...), err
		}
		current = replaceInSlice(current, d.Inputs, outputs)
	}
}

func replaceInSlice(all, old, new []*sr.SortedRun) []*sr.SortedRun {
	removed := make(map[uint64]bool, len(old))
	for _, s := range old {
		removed[s.GenerationID] = true
	}
	out := make([]*sr.SortedRun, 0, len(all)-len(old)+len(new))
	for _, s := range all {
		if !removed[s.GenerationID] {
			out = append(out, s)
		}
	}
	out = append(out, new...)
	return out
}

// Publish executes stage 5: the reshaped SRs become the table's live
// main set, and any per-table cache (row cache, bloom filter summary,
// etc. — out of this module's scope beyond the call site) is notified
// via onPublished (spec.md §4.7 stage 5 "publish").
func Publish(t *tablestate.State, reshaped []*sr.SortedRun, onPublished func([]*sr.SortedRun)) {
	t.Set().AddMain(reshaped...)
	if onPublished != nil {
		onPublished(reshaped)
	}
}
