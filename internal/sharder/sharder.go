// Package sharder supplies the shard-ownership geometry that compaction
// strategies and the loader treat as environment-supplied (spec.md §9:
// "the token-to-shard mapping is injected, never computed by this
// module"), plus the greedy reshard-distribution algorithm that uses it
// (spec.md §4.7 stage 2).
package sharder

import (
	"sort"

	"github.com/aalhour/shardstore/internal/sr"
	"github.com/zeebo/xxh3"
)

// Geometry maps an SR's token range to the shards that must own it. It
// is a pure function, supplied by whatever partitions keys across
// shards (out of scope here per spec.md §9); this package only defines
// the interface and a reference implementation good enough for tests
// and for single-process deployments.
type Geometry interface {
	// ShardCount is the number of shards in the keyspace.
	ShardCount() int
	// OwnersOf returns the shard ids that own tokenKey, in ascending
	// order.
	OwnersOf(tokenKey []byte) []sr.ShardID
}

// hashGeometry is a reference Geometry: a key's single owner is its
// xxh3 hash modulo shardCount, no replication. Grounded on the teacher's
// use of zeebo/xxh3 for its block-cache sharding key (internal/cache),
// generalized here to a keyspace-wide consistent-hash-free partition
// (hash modulo shard count, not a hash ring — simpler,
// and sufficient since Geometry is meant to be swapped out in any real
// deployment).
type hashGeometry struct {
	shardCount int
}

// NewHashGeometry returns a reference Geometry that assigns each key to
// shard xxh3(key) modulo shardCount.
func NewHashGeometry(shardCount int) Geometry {
	if shardCount <= 0 {
		shardCount = 1
	}
	return hashGeometry{shardCount: shardCount}
}

func (g hashGeometry) ShardCount() int { return g.shardCount }

func (g hashGeometry) OwnersOf(tokenKey []byte) []sr.ShardID {
	h := xxh3.Hash(tokenKey)
	idx := sr.ShardID(h % uint64(g.shardCount))
	return []sr.ShardID{idx}
}

// Workload is the per-shard accumulator the greedy distributor updates
// as it assigns SRs.
type Workload struct {
	Shard     sr.ShardID
	TotalSize uint64
	Assigned  []*sr.SortedRun
}

// DistributeReshardJobs assigns each shared SR to exactly one owning
// shard by greedily picking, size-descending, the shard among the SR's
// OwningShards with the smallest cumulative assigned workload so far
// (spec.md §4.7 stage 2, grounded on distribute_reshard_jobs in
// _examples/original_source/replica/distributed_loader.cc). Only
// SRs with Shared() true are distributed; single-owner SRs are left
// untouched by the caller.
func DistributeReshardJobs(shared []*sr.SortedRun, shardCount int) []Workload {
	byShard := make(map[sr.ShardID]*Workload, shardCount)
	for i := 0; i < shardCount; i++ {
		byShard[sr.ShardID(i)] = &Workload{Shard: sr.ShardID(i)}
	}

	sorted := append([]*sr.SortedRun{}, shared...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DataSize > sorted[j].DataSize })

	for _, s := range sorted {
		if len(s.OwningShards) == 0 {
			continue
		}
		best := s.OwningShards[0]
		for _, candidate := range s.OwningShards[1:] {
			w, ok := byShard[candidate]
			if !ok {
				continue
			}
			if bw, ok := byShard[best]; !ok || w.TotalSize < bw.TotalSize {
				best = candidate
			}
		}
		w, ok := byShard[best]
		if !ok {
			w = &Workload{Shard: best}
			byShard[best] = w
		}
		w.TotalSize += s.DataSize
		w.Assigned = append(w.Assigned, s)
	}

	out := make([]Workload, 0, len(byShard))
	for _, w := range byShard {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Shard < out[j].Shard })
	return out
}

// SplitIntoJobs splits one shard's assigned SRs, in order, into
// ceil(n/maxThreshold) batches of maxThreshold SRs each, the last one
// holding the remainder; batch sizes are not evened out. A batch is the
// unit of work a single reshard execution job handles (spec.md §4.7
// stage 3).
func SplitIntoJobs(assigned []*sr.SortedRun, maxThreshold int) [][]*sr.SortedRun {
	if maxThreshold <= 0 {
		maxThreshold = 32
	}
	var jobs [][]*sr.SortedRun
	for len(assigned) > 0 {
		n := maxThreshold
		if n > len(assigned) {
			n = len(assigned)
		}
		jobs = append(jobs, assigned[:n])
		assigned = assigned[n:]
	}
	return jobs
}
