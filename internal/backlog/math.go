package backlog

import "math"

// log4 is log base 4, floored at 1 — the backlog formula's "number of
// compaction passes to flatten total_bytes" term. ScyllaDB's
// size_tiered_backlog_tracker::holds the same floor so that a table
// with less than one bucket's worth of data never reports a negative
// backlog (compaction_strategy.cc, size_tiered_backlog_tracker).
func log4(totalBytes uint64) float64 {
	if totalBytes == 0 {
		return 1
	}
	v := math.Log2(float64(totalBytes)) / 2
	if v < 1 {
		return 1
	}
	return v
}

// clampNonNegative enforces the "backlog is never reported negative"
// invariant (spec.md §5) uniformly across trackers.
func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
