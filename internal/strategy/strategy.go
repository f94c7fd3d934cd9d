// Package strategy implements the three compaction strategies (STCS,
// LCS, TWCS) behind a single interface, plus the shared tombstone
// fallback rule.
//
// Reference: teacher internal/compaction.CompactionPicker
// (NeedsCompaction/PickCompaction split) generalized to spec.md §4.1's
// wider operation set (select/major/cleanup/reshape/pending/tracker),
// and ScyllaDB compaction_strategy_impl (the abstract base every
// concrete strategy in compaction_strategy.cc derives from).
package strategy

import (
	"github.com/aalhour/shardstore/internal/backlog"
	"github.com/aalhour/shardstore/internal/gchorizon"
	"github.com/aalhour/shardstore/internal/sr"
)

// ReshapeMode controls how aggressively reshape detects a layout
// violation (spec.md §4.2 "Reshape").
type ReshapeMode int

const (
	ReshapeStrict ReshapeMode = iota
	ReshapeRelaxed
)

// Flags on a Descriptor (spec.md §3 "Compaction Descriptor").
type Flags struct {
	Reshard        bool
	Cleanup        bool
	GarbageCollect bool
}

// Descriptor is a proposal to compact: input SRs, target output level,
// max output size, run id for outputs, and flags. An empty Descriptor
// (Inputs == nil) means "nothing to do" (spec.md §4.1).
type Descriptor struct {
	Inputs             []*sr.SortedRun
	OutputLevel        int
	MaxOutputSizeBytes uint64
	RunID              uint64
	Flags              Flags
}

// Empty reports whether d proposes no work.
func (d Descriptor) Empty() bool {
	return len(d.Inputs) == 0
}

// TableState is the read-only view a strategy needs of a table's live
// SR set plus whatever control knobs the admission layer exposes. It is
// satisfied by internal/tablestate.State; kept as an interface here so
// strategy has no dependency on tablestate (which depends on strategy).
type TableState interface {
	// Main returns the table's main-set SRs (spec.md §3).
	Main() []*sr.SortedRun
	// NowMicros is the clock the strategy uses for windowing and
	// tombstone-age checks; tests supply a fixed value.
	NowMicros() int64
	// GCState is passed through to gchorizon.Horizon unexamined.
	GCState() gchorizon.State
}

// Control carries knobs that come from outside the strategy (spec.md
// §4.1 select_compaction(table_state, control, candidates)). Its only
// field is Horizon, which STCS and LCS pass to the tombstone fallback.
type Control struct {
	// Horizon computes the GC-before point for tombstone estimation.
	Horizon gchorizon.Horizon
}

// Strategy is the uniform operation set every compaction style
// implements (spec.md §4.1).
type Strategy interface {
	// SelectCompaction picks zero-or-more SRs to compact now from
	// candidates (typically TableState.Main()). An empty Descriptor
	// means "nothing to do".
	SelectCompaction(ts TableState, ctl Control, candidates []*sr.SortedRun) Descriptor

	// MajorJob returns a single descriptor covering all candidates.
	MajorJob(ts TableState, candidates []*sr.SortedRun) Descriptor

	// CleanupJobs returns per-SR descriptors, bounded by
	// defaultMaxOutputSize, same level as the input. Strategies that
	// cluster by bucket override the default.
	CleanupJobs(ts TableState, candidates []*sr.SortedRun) []Descriptor

	// ReshapeJob classifies inputs into well-formed layout groups and
	// emits a compaction that repairs the layout. Empty means "layout
	// is acceptable".
	ReshapeJob(inputs []*sr.SortedRun, mode ReshapeMode) Descriptor

	// PendingCompactions is an estimate of compactions remaining.
	PendingCompactions(ts TableState) int

	// MakeBacklogTracker returns a fresh tracker bound to this
	// strategy's geometry (e.g. LCS's level count, TWCS's window size).
	MakeBacklogTracker() backlog.Tracker
}

// defaultMaxOutputSize is "∞ in practice" per spec.md §4.2; a sentinel
// large value keeps downstream size-budgeting code from needing a
// separate "unbounded" case.
const defaultMaxOutputSize = ^uint64(0)

// defaultCleanupJobs implements spec.md §4.1's default cleanup rule:
// one descriptor per SR, same level, bounded by defaultMaxOutputSize.
// STCS overrides this with a bucket-aware version and TWCS with one
// descriptor per time window; LCS uses it as-is (its levels already
// bound blast radius).
func defaultCleanupJobs(candidates []*sr.SortedRun) []Descriptor {
	out := make([]Descriptor, 0, len(candidates))
	for _, s := range candidates {
		if !s.Accountable() || s.BeingCompacted {
			continue
		}
		out = append(out, Descriptor{
			Inputs:             []*sr.SortedRun{s},
			OutputLevel:        s.Level,
			MaxOutputSizeBytes: defaultMaxOutputSize,
			Flags:              Flags{Cleanup: true},
		})
	}
	return out
}

// worthDroppingTombstones implements spec.md §4.1's shared rule:
//
//	!disabled ∧ age(SR) ≥ interval ∧ estimated_droppable_ratio(SR, gc_horizon) ≥ threshold
//
// disabled is expressed by a zero TombstoneThreshold in the common
// options (the default, 0.2, is never "disabled"; a caller wanting to
// disable tombstone compaction sets it to 0 explicitly, matching
// ScyllaDB's _disable_tombstone_compaction flag being distinct from the
// threshold value — modeled here as threshold<=0 to avoid a second
// option nobody in spec.md's table asks for).
//
// s.Tombstone.DroppableRatio is cached at estimation time against
// whatever horizon was live then; it goes stale as repair state moves
// the real horizon forward. horizon is the live, authoritative check:
// an SR only gets to cash in its cached ratio once its own data
// entirely predates the current horizon.
func worthDroppingTombstones(s *sr.SortedRun, nowMicros int64, thresholdRatio float64, intervalSeconds int64, horizon gchorizon.Horizon, gcState gchorizon.State) bool {
	if thresholdRatio <= 0 {
		return false
	}
	if sr.Age(s, nowMicros) < intervalSeconds*1_000_000 {
		return false
	}
	if s.Tombstone.DroppableRatio < thresholdRatio {
		return false
	}
	if horizon == nil {
		return true
	}
	return s.MaxTimestamp <= horizon(s, nowMicros, gcState)
}

// tombstoneFallback scans candidates for a single-SR tombstone
// compaction per spec.md §4.1/§4.2 ("Tombstone fallback"), returning the
// oldest-eligible SR's descriptor, or an empty Descriptor if none
// qualify. Shared by STCS and LCS (TWCS never calls it, per spec.md
// §4.4).
func tombstoneFallback(candidates []*sr.SortedRun, nowMicros int64, thresholdRatio float64, intervalSeconds int64, horizon gchorizon.Horizon, gcState gchorizon.State) Descriptor {
	var oldest *sr.SortedRun
	for _, s := range candidates {
		if !s.Accountable() || s.BeingCompacted {
			continue
		}
		if !worthDroppingTombstones(s, nowMicros, thresholdRatio, intervalSeconds, horizon, gcState) {
			continue
		}
		if oldest == nil || s.MaxTimestamp < oldest.MaxTimestamp {
			oldest = s
		}
	}
	if oldest == nil {
		return Descriptor{}
	}
	return Descriptor{
		Inputs:             []*sr.SortedRun{oldest},
		OutputLevel:        oldest.Level,
		MaxOutputSizeBytes: defaultMaxOutputSize,
		Flags:              Flags{GarbageCollect: true},
	}
}
