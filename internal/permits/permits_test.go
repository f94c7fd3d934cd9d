package permits

import (
	"context"
	"testing"
	"time"
)

func TestAcquireRegularBlocksAtMaxConcurrent(t *testing.T) {
	c := NewController(1)
	if err := c.AcquireRegular(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.AcquireRegular(ctx); err == nil {
		t.Error("expected second AcquireRegular to block and time out at maxConcurrent=1")
	}
}

func TestReleaseWakesWaiter(t *testing.T) {
	c := NewController(1)
	if err := c.AcquireRegular(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.AcquireRegular(context.Background())
	}()
	time.Sleep(10 * time.Millisecond)
	c.Release()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected waiter to acquire after Release, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Release did not wake the blocked waiter")
	}
}

func TestAcquireCustomPerClassIndependence(t *testing.T) {
	c := NewController(1)
	if err := c.AcquireCustom(context.Background(), ClassReshard); err != nil {
		t.Fatal(err)
	}
	// A different class must not be blocked by Reshard's single slot.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.AcquireCustom(ctx, ClassScrub); err != nil {
		t.Errorf("expected ClassScrub to have its own slot, got %v", err)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	if err := c.AcquireCustom(ctx2, ClassReshard); err == nil {
		t.Error("expected second ClassReshard acquire to block on its own exhausted slot")
	}
}

func TestReleaseCustomFreesSlot(t *testing.T) {
	c := NewController(1)
	if err := c.AcquireCustom(context.Background(), ClassUpgrade); err != nil {
		t.Fatal(err)
	}
	c.ReleaseCustom(ClassUpgrade)
	if err := c.AcquireCustom(context.Background(), ClassUpgrade); err != nil {
		t.Errorf("expected slot freed by ReleaseCustom to be reacquirable, got %v", err)
	}
}

func TestShutdownReleasesBlockedWaiters(t *testing.T) {
	c := NewController(1)
	if err := c.AcquireRegular(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.AcquireRegular(context.Background())
	}()
	time.Sleep(10 * time.Millisecond)
	c.Shutdown()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled from Shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not release the blocked waiter")
	}
}

func TestPacingDelayScalesWithBacklogShare(t *testing.T) {
	c := NewController(4)
	c.SetBacklogShare(0.5)
	if d := c.pacingDelay(); d != 0 {
		t.Errorf("pacingDelay at share<=1 = %v, want 0", d)
	}
	c.SetBacklogShare(2.0)
	if d := c.pacingDelay(); d <= 0 {
		t.Errorf("pacingDelay at share=2.0 should be positive, got %v", d)
	}
}

func TestStatsTracksGrantedAndWaited(t *testing.T) {
	c := NewController(1)
	_ = c.AcquireRegular(context.Background())
	granted, _ := c.Stats()
	if granted != 1 {
		t.Errorf("granted = %d, want 1", granted)
	}
}

func TestPermitShareProportional(t *testing.T) {
	c := NewController(1)
	if got := c.PermitShare(25, 100); got != 0.25 {
		t.Errorf("PermitShare(25, 100) = %v, want 0.25", got)
	}
}

func TestPermitShareZeroTotalBacklog(t *testing.T) {
	c := NewController(1)
	if got := c.PermitShare(10, 0); got != 0 {
		t.Errorf("PermitShare with zero total backlog = %v, want 0", got)
	}
	if got := c.PermitShare(10, -5); got != 0 {
		t.Errorf("PermitShare with negative total backlog = %v, want 0", got)
	}
}

func TestPermitShareClampsToOne(t *testing.T) {
	c := NewController(1)
	if got := c.PermitShare(150, 100); got != 1 {
		t.Errorf("PermitShare should clamp above 1, got %v", got)
	}
}
