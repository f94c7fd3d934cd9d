package sr

import "sync"

// Set is a per-table collection of Sorted Runs, partitioned into the
// main set (used for reads and normal compaction selection) and a
// maintenance set (staging, quarantine, off-strategy) per spec.md §3.
//
// Set is the single owner of its SRs' set-membership; it is mutated
// through Replace, AddMain, AddMaintenance and MoveToMaintenance, each
// made atomic with a mutex.
// Because the orchestration model is single-actor-per-shard (spec.md
// §5: "within a shard, the strategy, SR set, and backlog tracker are
// accessed only by the local actor"), this mutex is never contended in
// practice — it exists to make the atomicity contract explicit and to
// protect the rare cross-goroutine read path (e.g. a progress-reporting
// goroutine that wants a consistent snapshot).
type Set struct {
	mu          sync.Mutex
	main        map[uint64]*SortedRun
	maintenance map[uint64]*SortedRun
}

// NewSet returns an empty SR Set.
func NewSet() *Set {
	return &Set{
		main:        make(map[uint64]*SortedRun),
		maintenance: make(map[uint64]*SortedRun),
	}
}

// Main returns a snapshot slice of the main set's SRs.
func (s *Set) Main() []*SortedRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*SortedRun, 0, len(s.main))
	for _, r := range s.main {
		out = append(out, r)
	}
	return out
}

// Maintenance returns a snapshot slice of the maintenance set's SRs.
func (s *Set) Maintenance() []*SortedRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*SortedRun, 0, len(s.maintenance))
	for _, r := range s.maintenance {
		out = append(out, r)
	}
	return out
}

// AddMain inserts SRs directly into the main set without going through
// Replace. Used only at table-open time to seed the set from recovered
// state, and by the loader's publish stage (spec.md §4.7 stage 5).
func (s *Set) AddMain(srs ...*SortedRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range srs {
		s.main[r.GenerationID] = r
	}
}

// AddMaintenance inserts SRs directly into the maintenance set, e.g. for
// staging during reshape or quarantine on corruption (spec.md §7).
func (s *Set) AddMaintenance(srs ...*SortedRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range srs {
		s.maintenance[r.GenerationID] = r
	}
}

// Replace atomically removes old and inserts new into the main set.
// Replace([], []) is a documented no-op (spec.md invariant 3, §8). Every
// SR in old not found in the set is ignored (it may have already been
// removed by a racing replace of a superset compaction, which cannot
// happen under the single-actor model but is harmless to tolerate).
func (s *Set) Replace(old, new []*SortedRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range old {
		delete(s.main, r.GenerationID)
	}
	for _, r := range new {
		s.main[r.GenerationID] = r
	}
}

// MoveToMaintenance removes srs from the main set and adds them to the
// maintenance set, e.g. quarantine-on-corruption (spec.md §7).
func (s *Set) MoveToMaintenance(srs ...*SortedRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range srs {
		delete(s.main, r.GenerationID)
		s.maintenance[r.GenerationID] = r
	}
}

// ByLevel returns the main set's SRs at the given level.
func (s *Set) ByLevel(level int) []*SortedRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*SortedRun
	for _, r := range s.main {
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out
}

// MaxLevel returns the highest populated level in the main set, or -1
// if the set is empty.
func (s *Set) MaxLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := -1
	for _, r := range s.main {
		if r.Level > max {
			max = r.Level
		}
	}
	return max
}

// TotalBytes returns the sum of DataSize over accountable SRs in the
// main set.
func (s *Set) TotalBytes() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total uint64
	for _, r := range s.main {
		if r.Accountable() {
			total += r.DataSize
		}
	}
	return total
}
