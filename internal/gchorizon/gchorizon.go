// Package gchorizon injects the tombstone garbage-collection horizon as
// a pure function, per spec.md §9: "strategies never reach into
// replication or repair internals."
package gchorizon

import "github.com/aalhour/shardstore/internal/sr"

// State is the opaque, externally-owned GC state (repair history,
// schema-level gc_grace_seconds, etc). This module never inspects its
// contents.
type State interface{}

// Horizon computes the GC-before horizon for an SR given the current
// time and the external GC state. Strategies pass the result straight
// into sr.SortedRun.Tombstone.DroppableRatio estimation, which itself
// happens outside this module.
type Horizon func(s *sr.SortedRun, nowMicros int64, state State) int64
