// Package tablestate owns the per-table state a strategy needs to
// operate: the live SR Set, the configured Strategy, its backlog
// Tracker, and the bookkeeping for in-flight Compaction Job Records
// (spec.md §3). Exactly one actor — the orchestrator's per-table
// serialization point — is meant to hold a State at a time; this
// package itself only guards against accidental concurrent access with
// a mutex, it does not implement the "your turn" scheduling itself
// (that's internal/orchestrator's job).
//
// Grounded on the teacher's internal/compaction.CompactionJob lifecycle
// (MarkFilesBeingCompacted at pick time, released at job completion)
// generalized from one version-apply callback to a State that survives
// across many jobs.
package tablestate

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aalhour/shardstore/internal/backlog"
	"github.com/aalhour/shardstore/internal/gchorizon"
	"github.com/aalhour/shardstore/internal/sr"
	"github.com/aalhour/shardstore/internal/strategy"
)

// ErrInputBeingCompacted is returned by BeginJob when a proposed
// Descriptor overlaps an SR already claimed by another in-flight job —
// a strategy bug if it happens, since every strategy skips
// BeingCompacted SRs when selecting, but checked defensively (spec.md §3 invariant:
// "an SR is never an input to two simultaneous jobs").
var ErrInputBeingCompacted = errors.New("tablestate: input already being compacted")

// JobRecord is the Compaction Job Record (spec.md §3): the bookkeeping
// for one in-flight compaction, held so that backlog estimation and
// pending-compaction counts can account for work already underway.
type JobRecord struct {
	ID          uint64
	Descriptor  strategy.Descriptor
	StartMicros int64

	// BytesWritten, BytesCompacted track how far the job has actually
	// gotten, updated via UpdateJobProgress as the real storage layer
	// runs the merge. Backlog consults BytesCompacted (against
	// Descriptor.Inputs' total size) to discount this job's contribution
	// smoothly instead of all-or-nothing at claim time.
	BytesWritten   uint64
	BytesCompacted uint64
}

// State is one table's compaction-relevant state.
type State struct {
	mu sync.Mutex

	Keyspace string
	Table    string

	set     *sr.Set
	strat   strategy.Strategy
	tracker backlog.Tracker
	gcState gchorizon.State
	clock   func() int64

	jobs      map[uint64]*JobRecord
	nextJobID uint64
}

// New builds a State around an already-populated Set. clock is injected
// so tests can fix "now"; production callers pass a wall-clock reader.
func New(keyspace, table string, set *sr.Set, strat strategy.Strategy, gcState gchorizon.State, clock func() int64) *State {
	t := &State{
		Keyspace: keyspace,
		Table:    table,
		set:      set,
		strat:    strat,
		tracker:  strat.MakeBacklogTracker(),
		gcState:  gcState,
		clock:    clock,
		jobs:     make(map[uint64]*JobRecord),
	}
	for _, s := range set.Main() {
		t.tracker.AddSR(s)
	}
	return t
}

// Main satisfies strategy.TableState.
func (t *State) Main() []*sr.SortedRun {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.set.Main()
}

// NowMicros satisfies strategy.TableState.
func (t *State) NowMicros() int64 {
	return t.clock()
}

// GCState satisfies strategy.TableState.
func (t *State) GCState() gchorizon.State {
	return t.gcState
}

// Strategy returns the configured strategy.
func (t *State) Strategy() strategy.Strategy {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.strat
}

// Backlog returns the current tracker's estimate, combining the live
// SR set with writes (flushes not yet materialized as SRs) and the
// table's own in-flight jobs, per spec.md §4.5's
// backlog(ongoing_writes, ongoing_compactions) contract.
func (t *State) Backlog(writes []backlog.OngoingWrite) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	compactions := make([]backlog.OngoingCompaction, 0, len(t.jobs))
	for _, job := range t.jobs {
		compactions = append(compactions, backlog.OngoingCompaction{
			Inputs:         job.Descriptor.Inputs,
			BytesCompacted: job.BytesCompacted,
		})
	}
	return t.tracker.Backlog(writes, compactions)
}

// UpdateJobProgress records how far an in-flight job has gotten, so the
// next Backlog call reflects its real progress instead of treating it
// as either unclaimed or fully done (spec.md §3 "Compaction Job
// Record").
func (t *State) UpdateJobProgress(job *JobRecord, bytesWritten, bytesCompacted uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[job.ID]; !ok {
		return fmt.Errorf("tablestate: unknown job %d", job.ID)
	}
	job.BytesWritten = bytesWritten
	job.BytesCompacted = bytesCompacted
	return nil
}

// PendingJobs returns the number of in-flight jobs plus the strategy's
// own estimate of additional work still to be picked (spec.md §4.1
// pending_compactions, adjusted for work already claimed).
func (t *State) PendingJobs() int {
	t.mu.Lock()
	inFlight := len(t.jobs)
	t.mu.Unlock()
	return inFlight + t.strat.PendingCompactions(t)
}

// BeginJob claims d's inputs (marks them BeingCompacted so no other job
// can pick them) and returns a JobRecord that must eventually be
// finished via CompleteJob or released via AbortJob.
func (t *State) BeginJob(d strategy.Descriptor, nowMicros int64) (*JobRecord, error) {
	if d.Empty() {
		return nil, errors.New("tablestate: cannot begin an empty descriptor")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range d.Inputs {
		if s.BeingCompacted {
			return nil, fmt.Errorf("%w: generation %d", ErrInputBeingCompacted, s.GenerationID)
		}
	}
	for _, s := range d.Inputs {
		s.BeingCompacted = true
	}

	t.nextJobID++
	job := &JobRecord{ID: t.nextJobID, Descriptor: d, StartMicros: nowMicros}
	t.jobs[job.ID] = job
	return job, nil
}

// CompleteJob atomically replaces job's inputs with outputs in the live
// set and updates the tracker, then retires the job record (spec.md §3
// invariant 3: replace is the only mutation).
func (t *State) CompleteJob(job *JobRecord, outputs []*sr.SortedRun) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.jobs[job.ID]; !ok {
		return fmt.Errorf("tablestate: unknown job %d", job.ID)
	}
	for _, s := range job.Descriptor.Inputs {
		t.tracker.RemoveSR(s)
	}
	for _, s := range outputs {
		t.tracker.AddSR(s)
	}
	t.set.Replace(job.Descriptor.Inputs, outputs)
	delete(t.jobs, job.ID)
	return nil
}

// AbortJob releases job's inputs without producing outputs (e.g. the
// job was cancelled before it produced anything), clearing
// BeingCompacted so the SRs are eligible for selection again. The
// tracker's own view is untouched by Begin/AbortJob — BeingCompacted
// isn't part of its live-set accounting — so there's nothing to
// restore there.
func (t *State) AbortJob(job *JobRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.jobs[job.ID]; !ok {
		return fmt.Errorf("tablestate: unknown job %d", job.ID)
	}
	for _, s := range job.Descriptor.Inputs {
		s.BeingCompacted = false
	}
	delete(t.jobs, job.ID)
	return nil
}

// Set returns the underlying SR Set, for callers (the loader, mainly)
// that need to publish SRs directly outside the job lifecycle.
func (t *State) Set() *sr.Set {
	return t.set
}
