package loader

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/aalhour/shardstore/internal/sharder"
	"github.com/aalhour/shardstore/internal/sr"
	"github.com/aalhour/shardstore/internal/sropts"
	"github.com/aalhour/shardstore/internal/strategy"
	"github.com/aalhour/shardstore/internal/tablestate"
	"github.com/aalhour/shardstore/internal/vfs"
)

// stubFS implements vfs.FS with only ListDir behaving meaningfully;
// the rest panic if called, since Scan never needs them.
type stubFS struct {
	entries []string
}

func (f *stubFS) ListDir(path string) ([]string, error)                     { return f.entries, nil }
func (f *stubFS) Create(name string) (vfs.WritableFile, error)              { panic("unused") }
func (f *stubFS) Open(name string) (vfs.SequentialFile, error)              { panic("unused") }
func (f *stubFS) OpenRandomAccess(name string) (vfs.RandomAccessFile, error) { panic("unused") }
func (f *stubFS) Rename(oldname, newname string) error                      { panic("unused") }
func (f *stubFS) Remove(name string) error                                  { panic("unused") }
func (f *stubFS) RemoveAll(path string) error                               { panic("unused") }
func (f *stubFS) MkdirAll(path string, perm os.FileMode) error              { panic("unused") }
func (f *stubFS) Stat(name string) (os.FileInfo, error)                     { panic("unused") }
func (f *stubFS) Exists(name string) bool                                   { panic("unused") }
func (f *stubFS) Lock(name string) (io.Closer, error)                       { panic("unused") }
func (f *stubFS) SyncDir(path string) error                                 { panic("unused") }

func TestScanSkipsEntriesWithoutTOC(t *testing.T) {
	fs := &stubFS{entries: []string{"1-TOC.txt", "2-data.bin", "not-a-toc", "3-TOC.txt"}}
	var opened []uint64
	open := func(ctx context.Context, fs vfs.FS, dir string, genID uint64) (*sr.SortedRun, error) {
		opened = append(opened, genID)
		return sr.New(genID, 10, 0), nil
	}
	out, err := Scan(context.Background(), fs, "/data", open)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if opened[0] != 1 || opened[1] != 3 {
		t.Errorf("opened = %v, want [1 3]", opened)
	}
}

func TestDistributeSplitsOwnedAndShared(t *testing.T) {
	owned1 := sr.New(1, 10, 0)
	owned1.OwningShards = []sr.ShardID{0}
	shared := sr.New(2, 10, 0)
	shared.OwningShards = []sr.ShardID{0, 1}

	owned, workloads := Distribute([]*sr.SortedRun{owned1, shared}, 2)
	if len(owned) != 1 || owned[0].GenerationID != 1 {
		t.Errorf("owned = %+v, want just generation 1", owned)
	}
	var sawShared bool
	for _, w := range workloads {
		for _, s := range w.Assigned {
			if s.GenerationID == 2 {
				sawShared = true
			}
		}
	}
	if !sawShared {
		t.Error("shared SR should appear in one of the distributed workloads")
	}
}

func TestRunReshardRewritesInBatches(t *testing.T) {
	var assigned []*sr.SortedRun
	for i := 0; i < 5; i++ {
		assigned = append(assigned, sr.New(uint64(i+1), 10, 0))
	}
	w := sharder.Workload{Shard: 0, Assigned: assigned}
	var batches int
	resharder := func(ctx context.Context, shard sr.ShardID, batch []*sr.SortedRun) ([]*sr.SortedRun, error) {
		batches++
		return []*sr.SortedRun{sr.New(uint64(100+batches), 10, 0)}, nil
	}
	out, err := RunReshard(context.Background(), w, 2, resharder)
	if err != nil {
		t.Fatal(err)
	}
	if batches != 3 {
		t.Errorf("batches = %d, want 3 (2+2+1)", batches)
	}
	if len(out) != 3 {
		t.Errorf("len(out) = %d, want 3", len(out))
	}
}

func TestRunReshapeLoopsUntilEmpty(t *testing.T) {
	opts, _ := sropts.ParseSTCS(nil)
	s := strategy.STCS{Opts: opts}
	staging := []*sr.SortedRun{sr.New(1, 10, 0), sr.New(2, 10, 0)}
	calls := 0
	compact := func(ctx context.Context, d strategy.Descriptor) ([]*sr.SortedRun, error) {
		calls++
		merged := sr.New(99, 20, 0)
		return []*sr.SortedRun{merged}, nil
	}
	out, err := RunReshape(context.Background(), s, staging, strategy.ReshapeStrict, nil, compact)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Error("expected at least one output SR after reshape")
	}
	_ = calls
}

func TestRunReshapeFilterExcludesButPreservesSRs(t *testing.T) {
	opts, _ := sropts.ParseSTCS(nil)
	s := strategy.STCS{Opts: opts}
	repair := sr.New(1, 10, 0)
	repair.Origin = sr.OriginRepair
	staging := []*sr.SortedRun{repair, sr.New(2, 10, 0)}
	calls := 0
	compact := func(ctx context.Context, d strategy.Descriptor) ([]*sr.SortedRun, error) {
		calls++
		for _, s := range d.Inputs {
			if s.Origin == sr.OriginRepair {
				t.Fatal("filter should have excluded the repair-origin SR from compaction")
			}
		}
		return []*sr.SortedRun{sr.New(99, 20, 0)}, nil
	}
	notRepair := func(s *sr.SortedRun) bool { return s.Origin != sr.OriginRepair }
	out, err := RunReshape(context.Background(), s, staging, strategy.ReshapeStrict, notRepair, compact)
	if err != nil {
		t.Fatal(err)
	}
	var sawRepair bool
	for _, s := range out {
		if s.GenerationID == 1 {
			sawRepair = true
		}
	}
	if !sawRepair {
		t.Error("excluded repair-origin SR should still be present in the result")
	}
}

func TestPublishAddsToMainSet(t *testing.T) {
	opts, _ := sropts.ParseSTCS(nil)
	set := sr.NewSet()
	ts := tablestate.New("ks", "tbl", set, strategy.STCS{Opts: opts}, nil, func() int64 { return 0 })

	var notified []*sr.SortedRun
	Publish(ts, []*sr.SortedRun{sr.New(1, 10, 0)}, func(srs []*sr.SortedRun) { notified = srs })
	if len(set.Main()) != 1 {
		t.Errorf("main set size = %d, want 1", len(set.Main()))
	}
	if len(notified) != 1 {
		t.Error("onPublished callback should receive the published SRs")
	}
}
