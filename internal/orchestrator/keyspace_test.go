package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/aalhour/shardstore/internal/permits"
	"github.com/aalhour/shardstore/internal/sr"
	"github.com/aalhour/shardstore/internal/sropts"
	"github.com/aalhour/shardstore/internal/strategy"
	"github.com/aalhour/shardstore/internal/tablestate"
)

func newTestKeyspace(t *testing.T, n int) *Keyspace {
	t.Helper()
	opts, err := sropts.ParseSTCS(nil)
	if err != nil {
		t.Fatal(err)
	}
	var tables []*tablestate.State
	for i := 0; i < n; i++ {
		set := sr.NewSet()
		for j := 0; j < opts.MinThreshold; j++ {
			set.AddMain(sr.New(uint64(i*10+j+1), 100<<20, 0))
		}
		tables = append(tables, tablestate.New("ks", "tbl", set, strategy.STCS{Opts: opts}, nil, func() int64 { return 0 }))
	}
	return &Keyspace{Shards: []*Shard{NewShard(tables, 2)}}
}

func TestRunMajorInvokesRunJobForEveryTable(t *testing.T) {
	ks := newTestKeyspace(t, 3)
	var calls int32
	err := ks.RunMajor(context.Background(), func(ctx context.Context, tbl *tablestate.State, d strategy.Descriptor) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRunCustomGatesThroughPermits(t *testing.T) {
	ks := newTestKeyspace(t, 2)
	var calls int32
	err := ks.RunCustom(context.Background(), permits.ClassUpgrade, 2, func(ctx context.Context, tbl *tablestate.State) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestAbortStopsFurtherShardWork(t *testing.T) {
	ks := newTestKeyspace(t, 1)
	ks.Abort()
	err := ks.RunMajor(context.Background(), func(ctx context.Context, tbl *tablestate.State, d strategy.Descriptor) error {
		return nil
	})
	if err == nil {
		t.Error("expected RunMajor to fail after Abort")
	}
}
