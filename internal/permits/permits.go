// Package permits implements the admission layer that gates how many
// compaction jobs may run at once, and at what pace, fed by the live
// backlog estimate (spec.md §4.5 "Resource Policy"). Each orchestrator
// Shard owns one Controller.
//
// Adapted from the teacher's write_controller.go/rate_limiter.go: the
// same sync.Cond-gated stall/release shape, retargeted from "stall
// writers when compaction falls behind" to "gate how many compaction
// jobs may run, and how fast new ones are admitted, as a function of
// backlog". Custom job kinds (reshard/reshape/upgrade/scrub) get their
// own semaphore rather than sharing the regular-compaction gate, per
// spec.md §4.5's "regular compaction and custom jobs never compete for
// the same slot".
package permits

import (
	"context"
	"sync"
	"time"
)

// JobClass distinguishes the custom job kinds from regular
// (strategy-driven) compaction, per spec.md §4.5/§4.6.
type JobClass int

const (
	ClassReshard JobClass = iota
	ClassReshape
	ClassUpgrade
	ClassScrub
	ClassOffstrategy
)

func (c JobClass) String() string {
	switch c {
	case ClassReshard:
		return "reshard"
	case ClassReshape:
		return "reshape"
	case ClassUpgrade:
		return "upgrade"
	case ClassScrub:
		return "scrub"
	case ClassOffstrategy:
		return "offstrategy"
	default:
		return "unknown"
	}
}

// Controller is the global compaction-permit issuer for one shard.
type Controller struct {
	mu   sync.Mutex
	cond *sync.Cond

	maxConcurrent int
	active        int
	closed        bool

	// backlogShare is the fraction (0..1+) of the configured backlog
	// budget currently in use, set by the caller through SetBacklogShare
	// and consulted by pacing: a share above 1 widens
	// the inter-permit delay so a runaway table doesn't starve its
	// siblings (mirrors delayedWriteRate's backpressure role).
	backlogShare float64

	custom map[JobClass]chan struct{}

	totalGranted uint64
	totalWaited  uint64
}

// defaultMaxConcurrent bounds regular compaction concurrency absent an
// explicit override; spec.md §4.5 leaves the exact number
// environment-supplied, this is a reasonable single-shard default.
const defaultMaxConcurrent = 2

// customSlots is the per-class semaphore depth for custom jobs
// (spec.md §4.6): bounded, but independent of regular compaction's
// budget.
const customSlots = 1

// NewController returns a Controller with maxConcurrent regular-job
// slots (0 or negative uses defaultMaxConcurrent).
func NewController(maxConcurrent int) *Controller {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	c := &Controller{
		maxConcurrent: maxConcurrent,
		custom:        make(map[JobClass]chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	for _, class := range []JobClass{ClassReshard, ClassReshape, ClassUpgrade, ClassScrub, ClassOffstrategy} {
		c.custom[class] = make(chan struct{}, customSlots)
	}
	return c
}

// SetBacklogShare records the latest backlog-share reading, consulted
// by AcquireRegular's pacing delay.
func (c *Controller) SetBacklogShare(share float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backlogShare = share
}

// PermitShare returns a table's fraction of the keyspace's total
// backlog, in [0,1] (spec.md §5 "AdmissionController.PermitShare"). A
// non-positive totalBacklog (nothing outstanding anywhere) reports a
// zero share. Nothing in this module passes the result to
// SetBacklogShare, and a share of at most 1 adds no pacing delay.
func (c *Controller) PermitShare(tableBacklog, totalBacklog float64) float64 {
	if totalBacklog <= 0 {
		return 0
	}
	share := tableBacklog / totalBacklog
	if share < 0 {
		return 0
	}
	if share > 1 {
		return 1
	}
	return share
}

// pacingDelay returns how long a newly granted permit should wait
// before starting, scaling with backlog share above 1.0 — the same
// role time.Sleep plays in the teacher's maybeStallWrite, but applied
// once per admitted job instead of once per byte written.
func (c *Controller) pacingDelay() time.Duration {
	c.mu.Lock()
	share := c.backlogShare
	c.mu.Unlock()
	if share <= 1.0 {
		return 0
	}
	return time.Duration((share-1.0)*50) * time.Millisecond
}

// AcquireRegular blocks until a regular-compaction slot is free or ctx
// is done, whichever comes first. On success the caller must call
// Release when the job finishes.
func (c *Controller) AcquireRegular(ctx context.Context) error {
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			close(stopped)
			c.cond.Broadcast()
		case <-done:
		}
	}()
	defer close(done)

	c.mu.Lock()
	waited := false
	for c.active >= c.maxConcurrent && !c.closed {
		select {
		case <-stopped:
			c.mu.Unlock()
			return ctx.Err()
		default:
		}
		if !waited {
			c.totalWaited++
			waited = true
		}
		c.cond.Wait()
	}
	if c.closed {
		c.mu.Unlock()
		return context.Canceled
	}
	c.active++
	c.totalGranted++
	c.mu.Unlock()

	if d := c.pacingDelay(); d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
		}
	}
	return nil
}

// Release returns a regular-compaction slot, waking every waiter to
// re-check for a free slot.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active > 0 {
		c.active--
	}
	c.cond.Broadcast()
}

// AcquireCustom blocks until a slot for class is free or ctx is done.
// On success the caller must call ReleaseCustom(class).
func (c *Controller) AcquireCustom(ctx context.Context, class JobClass) error {
	sem, ok := c.custom[class]
	if !ok {
		return nil
	}
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReleaseCustom returns a slot for class.
func (c *Controller) ReleaseCustom(class JobClass) {
	sem, ok := c.custom[class]
	if !ok {
		return
	}
	select {
	case <-sem:
	default:
	}
}

// Shutdown releases every blocked AcquireRegular caller with
// context.Canceled, matching releaseWriteStall's "unblock workers stuck
// waiting" role during graceful shutdown.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}

// Stats returns how many regular permits have been granted and how
// many acquisitions had to wait at least once, for metrics export.
func (c *Controller) Stats() (granted, waited uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalGranted, c.totalWaited
}
