package strategy

import (
	"sort"

	"github.com/aalhour/shardstore/internal/backlog"
	"github.com/aalhour/shardstore/internal/sr"
	"github.com/aalhour/shardstore/internal/sropts"
)

// LCS is the Leveled strategy (spec.md §4.3), grounded on the teacher's
// LeveledCompactionPicker (picker.go: computeScore/targetSizeForLevel/
// pickL0Compaction/pickLevelCompaction) and ScyllaDB's
// leveled_manifest.
//
// Key-range overlap within a level is outside this module's scope
// (spec.md §9 treats an SR's key range as environment-supplied); a
// level's overflow compaction here takes the whole of the next level
// as input, which is the correct behavior when L+1 is small and a
// conservative superset otherwise.
type LCS struct {
	Opts sropts.LCS
}

var _ Strategy = LCS{}

func (s LCS) byLevel(candidates []*sr.SortedRun) map[int][]*sr.SortedRun {
	m := make(map[int][]*sr.SortedRun)
	for _, c := range candidates {
		if !c.Accountable() || c.BeingCompacted {
			continue
		}
		m[c.Level] = append(m[c.Level], c)
	}
	return m
}

func sizeOf(srs []*sr.SortedRun) uint64 {
	var total uint64
	for _, s := range srs {
		total += s.DataSize
	}
	return total
}

func maxPopulatedLevel(byLvl map[int][]*sr.SortedRun) int {
	max := 0
	for lvl, srs := range byLvl {
		if len(srs) > 0 && lvl > max {
			max = lvl
		}
	}
	return max
}

// pickOverflowLevel returns the lowest level >=1 whose live size
// exceeds its target, or -1 if none does (spec.md §4.3 "score-based
// level selection").
func (s LCS) pickOverflowLevel(byLvl map[int][]*sr.SortedRun) int {
	maxPop := maxPopulatedLevel(byLvl)
	if maxPop == 0 {
		return -1
	}
	targetMax := sizeOf(byLvl[maxPop])
	for lvl := 1; lvl < maxPop; lvl++ {
		target := backlog.TargetLevelSize(s.Opts.MaxSSTableBytes(), backlog.DefaultFanOut, targetMax, maxPop, lvl)
		if sizeOf(byLvl[lvl]) > target {
			return lvl
		}
	}
	return -1
}

func (s LCS) SelectCompaction(ts TableState, ctl Control, candidates []*sr.SortedRun) Descriptor {
	byLvl := s.byLevel(candidates)

	// L0 floods trigger an L0->L1 compaction as soon as MinThreshold
	// fresh runs have landed, same as the teacher's pickL0Compaction.
	if l0 := byLvl[0]; len(l0) >= s.Opts.MinThreshold {
		sort.Slice(l0, func(i, j int) bool { return l0[i].MaxTimestamp < l0[j].MaxTimestamp })
		if len(l0) > s.Opts.MaxThreshold {
			l0 = l0[:s.Opts.MaxThreshold]
		}
		inputs := append([]*sr.SortedRun{}, l0...)
		inputs = append(inputs, byLvl[1]...)
		return Descriptor{Inputs: inputs, OutputLevel: 1, MaxOutputSizeBytes: s.Opts.MaxSSTableBytes()}
	}

	if lvl := s.pickOverflowLevel(byLvl); lvl >= 0 {
		inputs := append([]*sr.SortedRun{}, byLvl[lvl]...)
		inputs = append(inputs, byLvl[lvl+1]...)
		return Descriptor{Inputs: inputs, OutputLevel: lvl + 1, MaxOutputSizeBytes: s.Opts.MaxSSTableBytes()}
	}

	return tombstoneFallback(candidates, ts.NowMicros(), s.Opts.TombstoneThreshold, s.Opts.TombstoneCompactionInterval, ctl.Horizon, ts.GCState())
}

func (s LCS) MajorJob(ts TableState, candidates []*sr.SortedRun) Descriptor {
	var live []*sr.SortedRun
	for _, c := range candidates {
		if c.Accountable() && !c.BeingCompacted {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		return Descriptor{}
	}
	maxLvl := 0
	for _, c := range live {
		if c.Level > maxLvl {
			maxLvl = c.Level
		}
	}
	return Descriptor{Inputs: live, OutputLevel: maxLvl, MaxOutputSizeBytes: s.Opts.MaxSSTableBytes()}
}

func (s LCS) CleanupJobs(ts TableState, candidates []*sr.SortedRun) []Descriptor {
	return defaultCleanupJobs(candidates)
}

func (s LCS) ReshapeJob(inputs []*sr.SortedRun, mode ReshapeMode) Descriptor {
	byLvl := s.byLevel(inputs)
	if l0 := byLvl[0]; len(l0) > 1 {
		sort.Slice(l0, func(i, j int) bool { return l0[i].MaxTimestamp < l0[j].MaxTimestamp })
		return Descriptor{Inputs: l0, OutputLevel: 1, MaxOutputSizeBytes: s.Opts.MaxSSTableBytes()}
	}
	if lvl := s.pickOverflowLevel(byLvl); lvl >= 0 {
		inputs := append([]*sr.SortedRun{}, byLvl[lvl]...)
		inputs = append(inputs, byLvl[lvl+1]...)
		return Descriptor{Inputs: inputs, OutputLevel: lvl + 1, MaxOutputSizeBytes: s.Opts.MaxSSTableBytes()}
	}
	return Descriptor{}
}

func (s LCS) PendingCompactions(ts TableState) int {
	byLvl := s.byLevel(ts.Main())
	count := 0
	if len(byLvl[0]) >= s.Opts.MinThreshold {
		count++
	}
	maxPop := maxPopulatedLevel(byLvl)
	if maxPop > 0 {
		targetMax := sizeOf(byLvl[maxPop])
		for lvl := 1; lvl < maxPop; lvl++ {
			target := backlog.TargetLevelSize(s.Opts.MaxSSTableBytes(), backlog.DefaultFanOut, targetMax, maxPop, lvl)
			if sizeOf(byLvl[lvl]) > target {
				count++
			}
		}
	}
	return count
}

func (s LCS) MakeBacklogTracker() backlog.Tracker {
	return backlog.NewLeveledTrackerWithMinThreshold(s.Opts.MaxSSTableBytes(), s.Opts.MinThreshold)
}
