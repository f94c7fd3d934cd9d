package sr

import "testing"

func TestAccountableSkipsZeroSize(t *testing.T) {
	s := New(1, 0, 0)
	if s.Accountable() {
		t.Error("zero-size SR should not be accountable")
	}
	s.DataSize = 100
	if !s.Accountable() {
		t.Error("non-zero-size SR should be accountable")
	}
}

func TestSharedRequiresMultipleOwners(t *testing.T) {
	s := New(1, 100, 0)
	if s.Shared() {
		t.Error("SR with no owners should not be shared")
	}
	s.OwningShards = []ShardID{0}
	if s.Shared() {
		t.Error("SR with one owner should not be shared")
	}
	s.OwningShards = []ShardID{0, 1}
	if !s.Shared() {
		t.Error("SR with two owners should be shared")
	}
}

func TestAge(t *testing.T) {
	s := New(1, 100, 0)
	s.MaxTimestamp = 1_000_000
	if got := Age(s, 5_000_000); got != 4_000_000 {
		t.Errorf("Age = %d, want 4000000", got)
	}
}
