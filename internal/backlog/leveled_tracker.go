package backlog

import (
	"math"

	"github.com/aalhour/shardstore/internal/sr"
)

// DefaultFanOut is the leveled strategy's level-to-level size
// multiplier (spec.md §4.3), matching ScyllaDB's and LevelDB/RocksDB's
// conventional leveled fan-out.
const DefaultFanOut = 10

// TargetLevelSize implements spec.md §4.3's target size formula,
// anchored on the actual size of the deepest populated level:
//
//	target_level_size(L) = max(max_sstable_size, ceil(target_max_level_size / fan_out^(max_populated-L)))
//
// Shared by internal/strategy's LCS candidate selection and this
// package's backlog accounting so the two never drift apart.
func TargetLevelSize(maxSSTableSize uint64, fanOut int, targetMaxLevelSize uint64, maxPopulated, level int) uint64 {
	if level >= maxPopulated {
		return targetMaxLevelSize
	}
	exp := float64(maxPopulated - level)
	scaled := math.Ceil(float64(targetMaxLevelSize) / math.Pow(float64(fanOut), exp))
	if scaled < float64(maxSSTableSize) {
		return maxSSTableSize
	}
	return uint64(scaled)
}

// EffectiveFanOut implements spec.md §9's resolved open question: use
// the PRE-propagation size of level L+1 to damp the fan-out applied
// when deciding how much of level L to pull up, per
// _examples/original_source/compoction_strategy.cc's
// leveled_manifest::compute_level_size damping term:
//
//	effective_fan_out = min(fan_out, ceil(size(L+1) / max_sstable_size))
func EffectiveFanOut(fanOut int, maxSSTableSize, preparationSizeLevelPlusOne uint64) int {
	if maxSSTableSize == 0 {
		return fanOut
	}
	damped := int(math.Ceil(float64(preparationSizeLevelPlusOne) / float64(maxSSTableSize)))
	if damped < 1 {
		damped = 1
	}
	if damped < fanOut {
		return damped
	}
	return fanOut
}

// leveledTracker is the Leveled backlog tracker (spec.md §5): a
// per-level size vector plus an inner Size-Tiered tracker for L0, whose
// SRs overlap and so are priced the STCS way rather than by level-size
// overflow (grounded on leveled_compaction_backlog_tracker in
// _examples/original_source/compaction/compaction_strategy.cc).
type leveledTracker struct {
	maxSSTableSize uint64
	fanOut         int

	l0         *stcsTracker
	sizePerLvl map[int]uint64
	byGen      map[uint64]int // GenerationID -> level, to route RemoveSR
}

// NewLeveledTracker returns a fresh Leveled tracker. maxSSTableSize
// bounds the smallest target level size (spec.md §4.3). L0's inner
// tracker uses the package fallback bucket geometry and min_threshold,
// since sropts.LCS carries no bucket-ratio fields of its own; prefer
// NewLeveledTrackerWithMinThreshold when the caller's configured
// min_threshold is available.
func NewLeveledTracker(maxSSTableSize uint64) Tracker {
	return NewLeveledTrackerWithMinThreshold(maxSSTableSize, fallbackMinThreshold)
}

// NewLeveledTrackerWithMinThreshold is like NewLeveledTracker but lets
// the caller (LCS, which has its own configured Common.MinThreshold)
// supply L0's min_threshold instead of the package fallback.
func NewLeveledTrackerWithMinThreshold(maxSSTableSize uint64, minThreshold int) Tracker {
	return &leveledTracker{
		maxSSTableSize: maxSSTableSize,
		fanOut:         DefaultFanOut,
		l0:             newSTCSTracker(minThreshold, fallbackBucketLow, fallbackBucketHigh, fallbackMinSSTableSize),
		sizePerLvl:     make(map[int]uint64),
		byGen:          make(map[uint64]int),
	}
}

func (t *leveledTracker) AddSR(s *sr.SortedRun) {
	if s == nil || !s.Accountable() {
		return
	}
	if s.Level == 0 {
		t.l0.AddSR(s)
	} else {
		t.sizePerLvl[s.Level] += s.DataSize
	}
	t.byGen[s.GenerationID] = s.Level
}

func (t *leveledTracker) RemoveSR(s *sr.SortedRun) {
	if s == nil {
		return
	}
	lvl, ok := t.byGen[s.GenerationID]
	if !ok {
		return
	}
	if lvl == 0 {
		t.l0.RemoveSR(s)
	} else if cur := t.sizePerLvl[lvl]; cur >= s.DataSize {
		t.sizePerLvl[lvl] = cur - s.DataSize
	} else {
		t.sizePerLvl[lvl] = 0
	}
	delete(t.byGen, s.GenerationID)
}

// Backlog implements spec.md §4.5 step 5's exact propagation: overflow
// at level L is size(L)-target(L); its backlog contribution is damped
// by effective_fan_out = min(fan_out, ceil(size(L+1)/max_sr_size)); and
// the overflow itself is carried into size(L+1) before L+1's own
// overflow is computed, so a flood at a shallow level cascades its
// pressure downward instead of each level being judged only against its
// own static size (grounded on
// _examples/original_source/compaction/compaction_strategy.cc:368-390).
func (t *leveledTracker) Backlog(writes []OngoingWrite, compactions []OngoingCompaction) float64 {
	sizes := make(map[int]uint64, len(t.sizePerLvl))
	for lvl, sz := range t.sizePerLvl {
		sizes[lvl] = sz
	}

	var l0Writes []OngoingWrite
	for _, w := range writes {
		if w.Level == 0 {
			l0Writes = append(l0Writes, w)
		} else {
			sizes[w.Level] += w.Bytes
		}
	}

	var l0Compactions []OngoingCompaction
	for _, c := range compactions {
		hasL0 := false
		progress := c.progress()
		for _, s := range c.Inputs {
			if s.Level == 0 {
				hasL0 = true
				continue
			}
			discount := uint64(float64(s.DataSize) * progress)
			if discount > sizes[s.Level] {
				discount = sizes[s.Level]
			}
			sizes[s.Level] -= discount
		}
		if hasL0 {
			l0Compactions = append(l0Compactions, c)
		}
	}

	maxPopulated := 0
	for lvl, size := range sizes {
		if size > 0 && lvl > maxPopulated {
			maxPopulated = lvl
		}
	}

	total := t.l0.Backlog(l0Writes, l0Compactions)
	if maxPopulated == 0 {
		return clampNonNegative(total)
	}

	for lvl := 1; lvl < maxPopulated; lvl++ {
		target := TargetLevelSize(t.maxSSTableSize, t.fanOut, sizes[maxPopulated], maxPopulated, lvl)
		size := sizes[lvl]
		if size <= target {
			continue
		}
		overflow := size - target
		effFanOut := EffectiveFanOut(t.fanOut, t.maxSSTableSize, sizes[lvl+1])
		total += float64(overflow) * float64(effFanOut)
		sizes[lvl+1] += overflow
	}
	return clampNonNegative(total)
}
