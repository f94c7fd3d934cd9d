package sharder

import (
	"testing"

	"github.com/aalhour/shardstore/internal/sr"
)

func TestDistributeReshardJobsBalancesLoad(t *testing.T) {
	shared := []*sr.SortedRun{
		withOwners(sr.New(1, 100, 0), 0, 1),
		withOwners(sr.New(2, 50, 0), 0, 1),
		withOwners(sr.New(3, 30, 0), 0, 1),
	}
	workloads := DistributeReshardJobs(shared, 2)
	var byShard = make(map[sr.ShardID]uint64)
	for _, w := range workloads {
		byShard[w.Shard] = w.TotalSize
	}
	// Greedy size-descending assignment to the least-loaded shard:
	// 100 -> shard0 (0 vs 0, picks first=0), 50 -> shard1 (0<100),
	// 30 -> shard1 (50<100), leaving shard0=100 and shard1=80; no shard
	// should end up holding everything.
	if byShard[0] == 180 || byShard[1] == 180 {
		t.Errorf("greedy distribution put everything on one shard: %+v", byShard)
	}
}

func TestDistributeReshardJobsSingleOwnerGoesToThatShard(t *testing.T) {
	s := withOwners(sr.New(1, 100, 0), 1)
	workloads := DistributeReshardJobs([]*sr.SortedRun{s}, 2)
	var shard1Assigned bool
	for _, w := range workloads {
		if w.Shard == 1 && len(w.Assigned) == 1 && w.Assigned[0].GenerationID == 1 {
			shard1Assigned = true
		}
	}
	if !shard1Assigned {
		t.Error("an SR whose OwningShards has one entry must be assigned to that shard")
	}
}

func TestSplitIntoJobsChunksByMaxThreshold(t *testing.T) {
	var srs []*sr.SortedRun
	for i := 0; i < 10; i++ {
		srs = append(srs, sr.New(uint64(i+1), 10, 0))
	}
	jobs := SplitIntoJobs(srs, 4)
	if len(jobs) != 3 {
		t.Fatalf("len(jobs) = %d, want 3 (4+4+2)", len(jobs))
	}
	if len(jobs[0]) != 4 || len(jobs[2]) != 2 {
		t.Errorf("unexpected job sizes: %v", []int{len(jobs[0]), len(jobs[1]), len(jobs[2])})
	}
}

func withOwners(s *sr.SortedRun, owners ...int) *sr.SortedRun {
	for _, o := range owners {
		s.OwningShards = append(s.OwningShards, sr.ShardID(o))
	}
	return s
}
