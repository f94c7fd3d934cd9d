package tablestate

import (
	"testing"

	"github.com/aalhour/shardstore/internal/backlog"
	"github.com/aalhour/shardstore/internal/sr"
	"github.com/aalhour/shardstore/internal/sropts"
	"github.com/aalhour/shardstore/internal/strategy"
)

func fixedClock(t int64) func() int64 { return func() int64 { return t } }

func TestBeginJobMarksInputsBeingCompacted(t *testing.T) {
	opts, _ := sropts.ParseSTCS(nil)
	set := sr.NewSet()
	a := sr.New(1, 100, 0)
	set.AddMain(a)
	ts := New("ks", "tbl", set, strategy.STCS{Opts: opts}, nil, fixedClock(0))

	d := strategy.Descriptor{Inputs: []*sr.SortedRun{a}, OutputLevel: 0}
	job, err := ts.BeginJob(d, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !a.BeingCompacted {
		t.Error("BeginJob should mark inputs BeingCompacted")
	}
	if job.ID == 0 {
		t.Error("expected a non-zero job id")
	}
}

func TestBeginJobRejectsAlreadyCompacting(t *testing.T) {
	opts, _ := sropts.ParseSTCS(nil)
	set := sr.NewSet()
	a := sr.New(1, 100, 0)
	a.BeingCompacted = true
	set.AddMain(a)
	ts := New("ks", "tbl", set, strategy.STCS{Opts: opts}, nil, fixedClock(0))

	_, err := ts.BeginJob(strategy.Descriptor{Inputs: []*sr.SortedRun{a}}, 0)
	if err == nil {
		t.Error("expected ErrInputBeingCompacted")
	}
}

func TestCompleteJobReplacesInSet(t *testing.T) {
	opts, _ := sropts.ParseSTCS(nil)
	set := sr.NewSet()
	a := sr.New(1, 100, 0)
	b := sr.New(2, 100, 0)
	set.AddMain(a, b)
	ts := New("ks", "tbl", set, strategy.STCS{Opts: opts}, nil, fixedClock(0))

	d := strategy.Descriptor{Inputs: []*sr.SortedRun{a, b}, OutputLevel: 0}
	job, err := ts.BeginJob(d, 0)
	if err != nil {
		t.Fatal(err)
	}
	merged := sr.New(3, 200, 0)
	if err := ts.CompleteJob(job, []*sr.SortedRun{merged}); err != nil {
		t.Fatal(err)
	}
	main := set.Main()
	if len(main) != 1 || main[0].GenerationID != 3 {
		t.Fatalf("unexpected main set after CompleteJob: %+v", main)
	}
}

func TestAbortJobClearsBeingCompacted(t *testing.T) {
	opts, _ := sropts.ParseSTCS(nil)
	set := sr.NewSet()
	a := sr.New(1, 100, 0)
	set.AddMain(a)
	ts := New("ks", "tbl", set, strategy.STCS{Opts: opts}, nil, fixedClock(0))

	job, err := ts.BeginJob(strategy.Descriptor{Inputs: []*sr.SortedRun{a}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := ts.AbortJob(job); err != nil {
		t.Fatal(err)
	}
	if a.BeingCompacted {
		t.Error("AbortJob should clear BeingCompacted")
	}
	if len(set.Main()) != 1 {
		t.Error("AbortJob must not remove the SR from the main set")
	}
}

func TestUpdateJobProgressDiscountsBacklog(t *testing.T) {
	opts, _ := sropts.ParseSTCS(nil)
	set := sr.NewSet()
	var srs []*sr.SortedRun
	for i := 0; i < opts.MinThreshold; i++ {
		s := sr.New(uint64(i+1), 1<<20, 0)
		srs = append(srs, s)
	}
	set.AddMain(srs...)
	ts := New("ks", "tbl", set, strategy.STCS{Opts: opts}, nil, fixedClock(0))

	before := ts.Backlog(nil)

	job, err := ts.BeginJob(strategy.Descriptor{Inputs: srs, OutputLevel: 0}, 0)
	if err != nil {
		t.Fatal(err)
	}
	var total uint64
	for _, s := range srs {
		total += s.DataSize
	}
	if err := ts.UpdateJobProgress(job, total/2, total/2); err != nil {
		t.Fatal(err)
	}
	after := ts.Backlog(nil)
	if after >= before {
		t.Errorf("progress on an in-flight job should reduce reported backlog: before=%v after=%v", before, after)
	}
}

func TestUpdateJobProgressUnknownJobErrors(t *testing.T) {
	opts, _ := sropts.ParseSTCS(nil)
	set := sr.NewSet()
	ts := New("ks", "tbl", set, strategy.STCS{Opts: opts}, nil, fixedClock(0))
	bogus := &JobRecord{ID: 999}
	if err := ts.UpdateJobProgress(bogus, 1, 1); err == nil {
		t.Error("expected an error updating progress on an unknown job")
	}
}

func TestBacklogIncludesOngoingWrites(t *testing.T) {
	opts, _ := sropts.ParseSTCS(nil)
	set := sr.NewSet()
	ts := New("ks", "tbl", set, strategy.STCS{Opts: opts}, nil, fixedClock(0))
	before := ts.Backlog(nil)
	writes := []backlog.OngoingWrite{{Bytes: 100 << 20}}
	after := ts.Backlog(writes)
	if after <= before {
		t.Errorf("an in-flight write should add to reported backlog: before=%v after=%v", before, after)
	}
}
