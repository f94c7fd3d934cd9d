package backlog

import (
	"sort"

	"github.com/aalhour/shardstore/internal/sr"
	"github.com/aalhour/shardstore/internal/sropts"
)

// Fallback bucketing used where an inner tracker has no configured STCS
// options of its own: LCS's L0 (sropts.LCS carries no bucket-ratio
// fields). TWCS window trackers always use the table's nested STCS
// options instead. The
// same bucket geometry compaction_backlog_tracker.cc's own helpers fall
// back to; not required to match a table's configured ratios exactly,
// since these are the tracker's own triage of "which SRs are worth
// costing," not a compaction decision.
const (
	fallbackMinThreshold   = 4
	fallbackBucketLow      = 0.5
	fallbackBucketHigh     = 1.5
	fallbackMinSSTableSize = 50 * 1024 * 1024
)

// stcsTracker is the Size-Tiered backlog tracker (spec.md §5, grounded
// on size_tiered_backlog_tracker in
// _examples/original_source/compaction/compaction_strategy.cc:120-145):
//
//	effective_backlog_bytes = bytes in buckets with >= min_threshold members
//	b = (effective_backlog_bytes * log4(total_bytes)) - sstables_contribution
//
// SRs not part of an eligible ("contributing") bucket don't add to the
// backlog yet — a size tier isn't owed compaction work until it has
// enough members to actually trigger one. sstables_contribution is the
// log4-weighted, progress-discounted contribution of SRs claimed by an
// ongoing compaction (OngoingCompaction.weightedContribution), not
// their plain byte sum.
type stcsTracker struct {
	live       map[uint64]*sr.SortedRun // by GenerationID
	totalBytes uint64

	minThreshold   int
	bucketLow      float64
	bucketHigh     float64
	minSSTableSize uint64
}

// newSTCSTracker builds a tracker bound to an explicit bucket geometry,
// shared by the exported constructor, LCS's L0 inner tracker, and
// TWCS's per-window inner trackers, so every inner STCS tracker in this
// package buckets identically given the same options.
func newSTCSTracker(minThreshold int, bucketLow, bucketHigh float64, minSSTableSize uint64) *stcsTracker {
	return &stcsTracker{
		live:           make(map[uint64]*sr.SortedRun),
		minThreshold:   minThreshold,
		bucketLow:      bucketLow,
		bucketHigh:     bucketHigh,
		minSSTableSize: minSSTableSize,
	}
}

// NewSTCSTracker returns a fresh Size-Tiered tracker bound to opts'
// bucket geometry (spec.md §4.2's bucket_low/bucket_high/min_threshold).
func NewSTCSTracker(opts sropts.STCS) Tracker {
	return newSTCSTracker(opts.MinThreshold, opts.BucketLow, opts.BucketHigh, opts.MinSSTableSize)
}

func (t *stcsTracker) AddSR(s *sr.SortedRun) {
	if s == nil || !s.Accountable() {
		return
	}
	if _, exists := t.live[s.GenerationID]; exists {
		return
	}
	t.live[s.GenerationID] = s
	t.totalBytes += s.DataSize
}

func (t *stcsTracker) RemoveSR(s *sr.SortedRun) {
	if s == nil {
		return
	}
	cur, exists := t.live[s.GenerationID]
	if !exists {
		return
	}
	delete(t.live, s.GenerationID)
	t.totalBytes -= cur.DataSize
}

// contributingBytes buckets the live set the same way STCS picks
// candidates (internal/strategy.STCS.buckets can't be reused directly —
// strategy already imports backlog, so importing it back here would
// cycle — this is an independent, import-cycle-safe pass over the same
// rule) and sums only buckets with at least min_threshold members.
func (t *stcsTracker) contributingBytes() uint64 {
	srs := make([]*sr.SortedRun, 0, len(t.live))
	for _, s := range t.live {
		srs = append(srs, s)
	}
	sort.Slice(srs, func(i, j int) bool { return srs[i].DataSize < srs[j].DataSize })

	type acc struct {
		total uint64
		avg   float64
		n     int
	}
	var buckets []acc
	for _, s := range srs {
		size := s.DataSize
		if size < t.minSSTableSize {
			size = t.minSSTableSize
		}
		placed := false
		for i := range buckets {
			b := &buckets[i]
			lo := b.avg * t.bucketLow
			hi := b.avg * t.bucketHigh
			if float64(size) >= lo && float64(size) <= hi {
				b.total += s.DataSize
				b.n++
				b.avg += (float64(size) - b.avg) / float64(b.n)
				placed = true
				break
			}
		}
		if !placed {
			buckets = append(buckets, acc{total: s.DataSize, avg: float64(size), n: 1})
		}
	}

	var contributing uint64
	for _, b := range buckets {
		if b.n >= t.minThreshold {
			contributing += b.total
		}
	}
	return contributing
}

func (t *stcsTracker) Backlog(writes []OngoingWrite, compactions []OngoingCompaction) float64 {
	var writeBytes uint64
	for _, w := range writes {
		writeBytes += w.Bytes
	}
	if t.totalBytes == 0 && writeBytes == 0 {
		return 0
	}

	effective := float64(t.contributingBytes() + writeBytes)
	total := t.totalBytes + writeBytes

	var contribution float64
	for _, c := range compactions {
		contribution += c.weightedContribution()
	}

	b := effective*log4(total) - contribution
	return clampNonNegative(b)
}
