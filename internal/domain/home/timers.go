package home

import (
	"sync"
	"time"

	apperrors "github.com/barnabee/barnabee/pkg/errors"
)

// TimerLease describes an acquired slot: the label it was acquired under
// and the running timer's duration and start, so a cancelled timer can be
// recreated with its residual duration.
type TimerLease struct {
	Label     string
	Duration  time.Duration
	StartedAt time.Time
}

// Remaining reports how much of the lease's duration is left at now.
func (l TimerLease) Remaining(now time.Time) time.Duration {
	left := l.Duration - now.Sub(l.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// TimerPool manages a fixed set of platform timer entities. Slots are
// acquired in FIFO order of release, and a slot is never handed out twice
// before being released.
type TimerPool struct {
	mu    sync.Mutex
	free  []string
	inUse map[string]TimerLease
}

// NewTimerPool creates a pool over the given timer entity ids.
func NewTimerPool(slots []string) *TimerPool {
	free := make([]string, len(slots))
	copy(free, slots)
	return &TimerPool{
		free:  free,
		inUse: make(map[string]TimerLease, len(slots)),
	}
}

// Acquire hands out the next free slot, recording the label, duration and
// start time for release-by-label and residual-duration recreation.
// Returns a capacity error when the pool is exhausted.
func (p *TimerPool) Acquire(label string, d time.Duration, started time.Time) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) == 0 {
		return "", apperrors.NewCapacity("all timer slots are in use")
	}
	slot := p.free[0]
	p.free = p.free[1:]
	p.inUse[slot] = TimerLease{Label: label, Duration: d, StartedAt: started}
	return slot, nil
}

// Release returns a slot to the back of the free queue and reports the
// lease it held. Releasing a slot that is not in use is a no-op.
func (p *TimerPool) Release(slot string) (TimerLease, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	lease, ok := p.inUse[slot]
	if !ok {
		return TimerLease{}, false
	}
	delete(p.inUse, slot)
	p.free = append(p.free, slot)
	return lease, true
}

// FindByLabel returns the slot acquired under the label, if any.
func (p *TimerPool) FindByLabel(label string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for slot, l := range p.inUse {
		if l.Label == label {
			return slot, true
		}
	}
	return "", false
}

// Available reports the number of free slots.
func (p *TimerPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
