package strategy

import (
	"testing"

	"github.com/aalhour/shardstore/internal/gchorizon"
	"github.com/aalhour/shardstore/internal/sr"
	"github.com/aalhour/shardstore/internal/sropts"
)

// fakeTable is a minimal strategy.TableState for tests.
type fakeTable struct {
	main []*sr.SortedRun
	now  int64
}

func (f fakeTable) Main() []*sr.SortedRun    { return f.main }
func (f fakeTable) NowMicros() int64         { return f.now }
func (f fakeTable) GCState() gchorizon.State { return nil }

func TestSTCSSelectNoOpBelowMinThreshold(t *testing.T) {
	opts, _ := sropts.ParseSTCS(nil)
	s := STCS{Opts: opts}
	candidates := []*sr.SortedRun{sr.New(1, 100<<20, 0), sr.New(2, 100<<20, 0)}
	d := s.SelectCompaction(fakeTable{main: candidates}, Control{}, candidates)
	if !d.Empty() {
		t.Errorf("expected no-op below MinThreshold, got %+v", d)
	}
}

func TestSTCSSelectPicksBucket(t *testing.T) {
	opts, _ := sropts.ParseSTCS(nil)
	s := STCS{Opts: opts}
	var candidates []*sr.SortedRun
	for i := 0; i < opts.MinThreshold; i++ {
		candidates = append(candidates, sr.New(uint64(i+1), 100<<20, 0))
	}
	d := s.SelectCompaction(fakeTable{main: candidates}, Control{}, candidates)
	if d.Empty() {
		t.Fatal("expected a compaction once MinThreshold same-size SRs accumulate")
	}
	if len(d.Inputs) != opts.MinThreshold {
		t.Errorf("picked %d inputs, want %d", len(d.Inputs), opts.MinThreshold)
	}
}

func TestSTCSIgnoresBeingCompacted(t *testing.T) {
	opts, _ := sropts.ParseSTCS(nil)
	s := STCS{Opts: opts}
	var candidates []*sr.SortedRun
	for i := 0; i < opts.MinThreshold; i++ {
		c := sr.New(uint64(i+1), 100<<20, 0)
		c.BeingCompacted = true
		candidates = append(candidates, c)
	}
	d := s.SelectCompaction(fakeTable{main: candidates}, Control{}, candidates)
	if !d.Empty() {
		t.Error("SRs already being compacted must never be picked again")
	}
}

func TestLCSSelectL0Overflow(t *testing.T) {
	opts, _ := sropts.ParseLCS(nil)
	s := LCS{Opts: opts}
	var candidates []*sr.SortedRun
	for i := 0; i < opts.MinThreshold; i++ {
		candidates = append(candidates, sr.New(uint64(i+1), 10<<20, 0))
	}
	d := s.SelectCompaction(fakeTable{main: candidates}, Control{}, candidates)
	if d.Empty() {
		t.Fatal("expected L0->L1 compaction once MinThreshold L0 runs accumulate")
	}
	if d.OutputLevel != 1 {
		t.Errorf("OutputLevel = %d, want 1", d.OutputLevel)
	}
}

func TestLCSSelectLevelOverflowPromotes(t *testing.T) {
	opts, _ := sropts.ParseLCS(nil)
	s := LCS{Opts: opts}
	candidates := []*sr.SortedRun{
		sr.New(1, 800<<20, 1),
		sr.New(2, 5000<<20, 2),
	}
	d := s.SelectCompaction(fakeTable{main: candidates}, Control{}, candidates)
	if d.Empty() {
		t.Fatal("expected an overflow compaction from L1 into L2")
	}
	if d.OutputLevel != 2 {
		t.Errorf("OutputLevel = %d, want 2", d.OutputLevel)
	}
}

func TestTWCSOldWindowMergesBeforeHotWindowPicks(t *testing.T) {
	opts, err := sropts.ParseTWCS(sropts.Map{
		"timestamp_resolution":   "SECONDS",
		"compaction_window_unit": "HOURS",
		"compaction_window_size": "1",
	})
	if err != nil {
		t.Fatal(err)
	}
	s := TWCS{Opts: opts}

	oldA := sr.New(1, 10<<20, 0)
	oldA.MaxTimestamp = 0
	oldB := sr.New(2, 10<<20, 0)
	oldB.MaxTimestamp = 1800 * 1_000_000 // same window as oldA

	nowMicros := int64(10*3600) * 1_000_000
	candidates := []*sr.SortedRun{oldA, oldB}
	d := s.SelectCompaction(fakeTable{main: candidates, now: nowMicros}, Control{}, candidates)
	if d.Empty() {
		t.Fatal("expected the closed window with two SRs to merge")
	}
	if len(d.Inputs) != 2 {
		t.Errorf("expected both old-window SRs as inputs, got %d", len(d.Inputs))
	}
}

func TestTombstoneFallbackPicksOldestEligible(t *testing.T) {
	opts, _ := sropts.ParseSTCS(nil)
	s := STCS{Opts: opts}
	old := sr.New(1, 10<<20, 0)
	old.MaxTimestamp = 0
	old.Tombstone.DroppableRatio = 0.9
	candidates := []*sr.SortedRun{old}
	nowMicros := int64(2 * 86400 * 1_000_000)
	horizon := gchorizon.Horizon(func(*sr.SortedRun, int64, gchorizon.State) int64 { return 0 })
	d := s.SelectCompaction(fakeTable{main: candidates, now: nowMicros}, Control{Horizon: horizon}, candidates)
	if d.Empty() {
		t.Fatal("expected tombstone fallback to pick the old, droppable SR")
	}
	if !d.Flags.GarbageCollect {
		t.Error("expected GarbageCollect flag set on tombstone fallback")
	}
}
