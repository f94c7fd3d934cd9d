package strategy

import (
	"sort"

	"github.com/aalhour/shardstore/internal/backlog"
	"github.com/aalhour/shardstore/internal/sr"
	"github.com/aalhour/shardstore/internal/sropts"
)

// STCS is the Size-Tiered strategy (spec.md §4.2), grounded on the
// teacher's universal_picker.go (sortedRun bucketing + size-ratio
// selection) and ScyllaDB's size_tiered_compaction_strategy.
type STCS struct {
	Opts sropts.STCS
}

var _ Strategy = STCS{}

// bucket is a set of SRs whose sizes are mutually within
// [BucketLow*avg, BucketHigh*avg] of each other (spec.md §4.2
// "Bucketing").
type bucket struct {
	srs       []*sr.SortedRun
	avgSize   float64
	totalSize uint64
}

// buckets groups candidates by size, same rule as the teacher's
// universal_picker.go findSizeRatioCompaction but keyed off
// BucketLow/BucketHigh rather than a single ratio.
func (s STCS) buckets(candidates []*sr.SortedRun) []bucket {
	var live []*sr.SortedRun
	for _, c := range candidates {
		if c.Accountable() && !c.BeingCompacted {
			live = append(live, c)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].DataSize < live[j].DataSize })

	var out []bucket
	for _, c := range live {
		size := c.DataSize
		if size < s.Opts.MinSSTableSize {
			size = s.Opts.MinSSTableSize
		}
		placed := false
		for i := range out {
			b := &out[i]
			lo := b.avgSize * s.Opts.BucketLow
			hi := b.avgSize * s.Opts.BucketHigh
			if float64(size) >= lo && float64(size) <= hi {
				b.srs = append(b.srs, c)
				b.totalSize += c.DataSize
				b.avgSize += (float64(size) - b.avgSize) / float64(len(b.srs))
				placed = true
				break
			}
		}
		if !placed {
			out = append(out, bucket{srs: []*sr.SortedRun{c}, avgSize: float64(size), totalSize: c.DataSize})
		}
	}
	return out
}

// hottestBucket returns the bucket with the lowest average SR size
// among buckets with at least MinThreshold members, capped at
// MaxThreshold SRs (oldest-first, spec.md §4.2 "interesting bucket":
// the smallest-average bucket is the cheapest to compact, so it's
// picked first even when a larger-average bucket has more members).
func (s STCS) hottestBucket(candidates []*sr.SortedRun) []*sr.SortedRun {
	var best bucket
	found := false
	for _, b := range s.buckets(candidates) {
		if len(b.srs) < s.Opts.MinThreshold {
			continue
		}
		if !found || b.avgSize < best.avgSize {
			best = b
			found = true
		}
	}
	if !found {
		return nil
	}
	sort.Slice(best.srs, func(i, j int) bool { return best.srs[i].MaxTimestamp < best.srs[j].MaxTimestamp })
	if len(best.srs) > s.Opts.MaxThreshold {
		best.srs = best.srs[:s.Opts.MaxThreshold]
	}
	return best.srs
}

func (s STCS) SelectCompaction(ts TableState, ctl Control, candidates []*sr.SortedRun) Descriptor {
	if picked := s.hottestBucket(candidates); len(picked) > 0 {
		return Descriptor{Inputs: picked, OutputLevel: 0, MaxOutputSizeBytes: defaultMaxOutputSize}
	}
	return tombstoneFallback(candidates, ts.NowMicros(), s.Opts.TombstoneThreshold, s.Opts.TombstoneCompactionInterval, ctl.Horizon, ts.GCState())
}

func (s STCS) MajorJob(ts TableState, candidates []*sr.SortedRun) Descriptor {
	var live []*sr.SortedRun
	for _, c := range candidates {
		if c.Accountable() && !c.BeingCompacted {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		return Descriptor{}
	}
	return Descriptor{Inputs: live, OutputLevel: 0, MaxOutputSizeBytes: defaultMaxOutputSize}
}

// CleanupJobs clusters by bucket rather than the default one-per-SR, so
// a cleanup run doesn't fragment a size tier further than the strategy
// would have tolerated on its own (spec.md §4.2 "Cleanup").
func (s STCS) CleanupJobs(ts TableState, candidates []*sr.SortedRun) []Descriptor {
	var out []Descriptor
	for _, b := range s.buckets(candidates) {
		if len(b.srs) == 0 {
			continue
		}
		out = append(out, Descriptor{Inputs: b.srs, OutputLevel: 0, MaxOutputSizeBytes: defaultMaxOutputSize, Flags: Flags{Cleanup: true}})
	}
	return out
}

// ReshapeJob groups by bucket exactly as SelectCompaction would, but
// unconditionally (ignoring MinThreshold) when mode is ReshapeStrict,
// matching spec.md §4.2's "reshape repairs any layout a fresh load could
// produce, not just a steady-state one".
func (s STCS) ReshapeJob(inputs []*sr.SortedRun, mode ReshapeMode) Descriptor {
	bs := s.buckets(inputs)
	threshold := s.Opts.MinThreshold
	if mode == ReshapeStrict {
		threshold = 2
	}
	for _, b := range bs {
		if len(b.srs) >= threshold {
			srs := b.srs
			if len(srs) > s.Opts.MaxThreshold {
				srs = srs[:s.Opts.MaxThreshold]
			}
			return Descriptor{Inputs: srs, OutputLevel: 0, MaxOutputSizeBytes: defaultMaxOutputSize}
		}
	}
	return Descriptor{}
}

func (s STCS) PendingCompactions(ts TableState) int {
	count := 0
	for _, b := range s.buckets(ts.Main()) {
		if len(b.srs) >= s.Opts.MinThreshold {
			count += len(b.srs) / s.Opts.MaxThreshold
			if count == 0 {
				count = 1
			}
		}
	}
	return count
}

func (s STCS) MakeBacklogTracker() backlog.Tracker {
	return backlog.NewSTCSTracker(s.Opts)
}
