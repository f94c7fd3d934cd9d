// Package backlog implements the compaction backlog trackers that feed
// internal/permits' admission control, one per strategy family
// (spec.md §5 "Backlog Tracker State").
//
// Grounded on compaction_backlog_tracker in
// _examples/original_source/compaction/compaction_strategy.cc: a
// tracker owns no SRs, only a running accounting of bytes added and
// bytes already compacted away, recomputed on demand from the live SR
// set it is handed plus whatever writes/compactions are currently in
// flight (spec.md §4.5: "backlog(ongoing_writes, ongoing_compactions)
// -> float" — the continuous estimate is the hard part: in-flight work
// must count without being double-counted).
package backlog

import "github.com/aalhour/shardstore/internal/sr"

// OngoingWrite is a flush (or other write) not yet materialized as a
// SortedRun, whose bytes nonetheless already count toward backlog the
// moment they're known (spec.md §4.5). MaxTimestamp and Level route the
// write to the right inner tracker for trackers that partition by one
// of those (TWCS by window, Leveled by level); a tracker that doesn't
// partition that way (plain STCS) ignores the field it doesn't use.
type OngoingWrite struct {
	Bytes        uint64
	MaxTimestamp int64
	Level        int
}

// OngoingCompaction is one in-flight compaction job's progress: the
// inputs it claimed (already reflected in AddSR, since claiming an
// input never removes it from the tracker) and how many of those bytes
// have actually been rewritten to output so far. Backlog uses this to
// discount a compaction's contribution smoothly as it runs, instead of
// treating "claimed" and "fully done" the same way (spec.md §1:
// "without double-counting in-flight bytes").
type OngoingCompaction struct {
	Inputs         []*sr.SortedRun
	BytesCompacted uint64
}

func (c OngoingCompaction) totalInputBytes() uint64 {
	var total uint64
	for _, s := range c.Inputs {
		total += s.DataSize
	}
	return total
}

// progress is how much of c's inputs have been rewritten, clamped to
// [0,1].
func (c OngoingCompaction) progress() float64 {
	total := c.totalInputBytes()
	if total == 0 {
		return 0
	}
	p := float64(c.BytesCompacted) / float64(total)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// weightedContribution is the log4-weighted backlog "debt" c's inputs
// represent, discounted by how much of that debt has already been
// worked off (spec.md §5: sstables_contribution = Σ Sᵢ×log4(Sᵢ) over
// SRs currently claimed by a compaction, not a plain byte sum —
// compacting a large run is worth more debt relief than compacting a
// small one).
func (c OngoingCompaction) weightedContribution() float64 {
	var weighted float64
	for _, s := range c.Inputs {
		weighted += float64(s.DataSize) * log4(s.DataSize)
	}
	return weighted * c.progress()
}

// Tracker estimates the compaction backlog (bytes of "extra read/write
// amplification work" outstanding) for one table. Backlog takes the
// writes and compactions currently in flight so the estimate is
// continuous through concurrent activity instead of jumping only when
// the live SR set itself changes (spec.md §4.5). Implementations are
// not safe for concurrent use; callers serialize access the same way
// they serialize SR-set mutation (spec.md §3 invariant 2: exactly one
// actor owns a table at a time).
type Tracker interface {
	// AddSR updates the tracker for a newly added SR, e.g. a flush or a
	// compaction output.
	AddSR(s *sr.SortedRun)

	// RemoveSR updates the tracker for an SR leaving the main set,
	// e.g. consumed as compaction input.
	RemoveSR(s *sr.SortedRun)

	// Backlog estimates the outstanding backlog in bytes, given the
	// writes and compactions currently in flight. Never negative;
	// implementations clamp at zero (spec.md §5 invariant: "backlog is
	// never reported negative").
	Backlog(writes []OngoingWrite, compactions []OngoingCompaction) float64
}

// null is the always-zero tracker used where a strategy opts out of
// backlog-driven admission (e.g. disabled autocompaction), per spec.md
// §5's "Disabled" sentinel state.
type null struct{}

// Disabled is the always-zero Tracker.
var Disabled Tracker = null{}

func (null) AddSR(*sr.SortedRun)                                         {}
func (null) RemoveSR(*sr.SortedRun)                                      {}
func (null) Backlog([]OngoingWrite, []OngoingCompaction) float64 { return 0 }

// IsDisabled reports whether t is the Disabled sentinel.
func IsDisabled(t Tracker) bool {
	_, ok := t.(null)
	return ok
}
