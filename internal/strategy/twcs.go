package strategy

import (
	"sort"

	"github.com/aalhour/shardstore/internal/backlog"
	"github.com/aalhour/shardstore/internal/sr"
	"github.com/aalhour/shardstore/internal/sropts"
)

// TWCS is the Time-Window strategy (spec.md §4.4): partitions SRs into
// fixed-size time windows, runs Size-Tiered inside the current window,
// and merges each older window down to a single SR once it closes.
// Grounded on the teacher's fifo_picker.go (age-bucketed selection) and
// ScyllaDB's time_window_compaction_strategy.
//
// Tombstone fallback is disabled for TWCS (spec.md §4.4): the hot
// window runs STCS bucket selection only, and the tombstone options do
// not turn the fallback on. Old, fully-merged windows are expected to
// expire wholesale rather than be individually garbage-collected.
type TWCS struct {
	Opts sropts.TWCS
}

var _ Strategy = TWCS{}

func (s TWCS) windows(candidates []*sr.SortedRun) map[int64][]*sr.SortedRun {
	m := make(map[int64][]*sr.SortedRun)
	for _, c := range candidates {
		if !c.Accountable() || c.BeingCompacted {
			continue
		}
		w := s.Opts.WindowLowerBound(c.MaxTimestamp)
		m[w] = append(m[w], c)
	}
	return m
}

func sortedWindowKeys(m map[int64][]*sr.SortedRun) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s TWCS) SelectCompaction(ts TableState, ctl Control, candidates []*sr.SortedRun) Descriptor {
	byWindow := s.windows(candidates)
	nowWindow := s.Opts.WindowLowerBound(ts.NowMicros())

	// Oldest closed window with more than one SR merges first, so the
	// tail of the time series flattens to one SR per window before the
	// hot window even starts picking (spec.md §4.4 "old-window merge").
	for _, w := range sortedWindowKeys(byWindow) {
		if w >= nowWindow {
			continue
		}
		srs := byWindow[w]
		if len(srs) > 1 {
			return Descriptor{Inputs: srs, OutputLevel: 0, MaxOutputSizeBytes: defaultMaxOutputSize}
		}
	}

	hot := STCS{Opts: s.Opts.STCS}
	if picked := hot.hottestBucket(byWindow[nowWindow]); len(picked) > 0 {
		return Descriptor{Inputs: picked, OutputLevel: 0, MaxOutputSizeBytes: defaultMaxOutputSize}
	}
	return Descriptor{}
}

func (s TWCS) MajorJob(ts TableState, candidates []*sr.SortedRun) Descriptor {
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

func (s TWCS) CleanupJobs(ts TableState, candidates []*sr.SortedRun) []Descriptor {
	byWindow := s.windows(candidates)
	var out []Descriptor
	for _, w := range sortedWindowKeys(byWindow) {
		out = append(out, Descriptor{Inputs: byWindow[w], OutputLevel: 0, MaxOutputSizeBytes: defaultMaxOutputSize, Flags: Flags{Cleanup: true}})
	}
	return out
}

func (s TWCS) ReshapeJob(inputs []*sr.SortedRun, mode ReshapeMode) Descriptor {
	byWindow := s.windows(inputs)
	for _, w := range sortedWindowKeys(byWindow) {
		if srs := byWindow[w]; len(srs) > 1 {
			return Descriptor{Inputs: srs, OutputLevel: 0, MaxOutputSizeBytes: defaultMaxOutputSize}
		}
	}
	return Descriptor{}
}

func (s TWCS) PendingCompactions(ts TableState) int {
	byWindow := s.windows(ts.Main())
	nowWindow := s.Opts.WindowLowerBound(ts.NowMicros())
	count := 0
	for w, srs := range byWindow {
		if w < nowWindow && len(srs) > 1 {
			count++
		}
	}
	return count
}

func (s TWCS) MakeBacklogTracker() backlog.Tracker {
	return backlog.NewTWCSTracker(s.Opts)
}
