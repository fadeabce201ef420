package home

import (
	"testing"
	"time"

	apperrors "github.com/barnabee/barnabee/pkg/errors"
)

func TestTimerPoolAcquireRelease(t *testing.T) {
	p := NewTimerPool([]string{"timer.slot_1", "timer.slot_2"})
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	a, err := p.Acquire("pasta", 10*time.Minute, start)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if a != "timer.slot_1" {
		t.Errorf("first slot = %s", a)
	}

	b, err := p.Acquire("laundry", time.Hour, start)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := p.Acquire("third", time.Minute, start); !apperrors.IsCapacity(err) {
		t.Errorf("exhausted pool must return a capacity error, got %v", err)
	}

	lease, ok := p.Release(a)
	if !ok {
		t.Fatal("release of held slot reported not in use")
	}
	if lease.Label != "pasta" || lease.Duration != 10*time.Minute {
		t.Errorf("lease = %+v", lease)
	}
	if p.Available() != 1 {
		t.Errorf("available = %d, want 1", p.Available())
	}

	// Released slot goes to the back of the queue; with one free slot it
	// is handed out again.
	c, err := p.Acquire("eggs", 5*time.Minute, start)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if c != a {
		t.Errorf("reacquired slot = %s, want %s", c, a)
	}
	_ = b
}

func TestTimerPoolNeverDoubleIssues(t *testing.T) {
	p := NewTimerPool([]string{"timer.slot_1", "timer.slot_2", "timer.slot_3"})
	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		slot, err := p.Acquire("x", time.Minute, time.Now())
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		if seen[slot] {
			t.Fatalf("slot %s issued twice", slot)
		}
		seen[slot] = true
	}
}

func TestTimerPoolFindByLabel(t *testing.T) {
	p := NewTimerPool([]string{"timer.slot_1"})
	slot, _ := p.Acquire("pasta", 10*time.Minute, time.Now())

	got, ok := p.FindByLabel("pasta")
	if !ok || got != slot {
		t.Errorf("FindByLabel = %s, %v", got, ok)
	}
	if _, ok := p.FindByLabel("missing"); ok {
		t.Error("unknown label found")
	}
}

func TestTimerPoolReleaseUnknownNoop(t *testing.T) {
	p := NewTimerPool([]string{"timer.slot_1"})
	if _, ok := p.Release("timer.slot_1"); ok { // Not in use
		t.Error("release of free slot reported a lease")
	}
	if p.Available() != 1 {
		t.Errorf("available = %d, want 1", p.Available())
	}
}

func TestTimerLeaseRemaining(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	lease := TimerLease{Label: "pasta", Duration: 10 * time.Minute, StartedAt: start}

	if got := lease.Remaining(start.Add(4 * time.Minute)); got != 6*time.Minute {
		t.Errorf("remaining = %s, want 6m", got)
	}
	if got := lease.Remaining(start.Add(15 * time.Minute)); got != 0 {
		t.Errorf("expired remaining = %s, want 0", got)
	}
}
