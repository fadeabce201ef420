package home

import (
	"sync"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
)

// DefaultUndoDepth is the per-conversation ring size.
const DefaultUndoDepth = 5

// UndoSlot captures one executed action: the states of every affected
// entity as they were immediately before the action ran. Restoring the
// snapshot verbatim is the undo.
type UndoSlot struct {
	ActionKind    string
	Snapshots     []entity.EntityState
	TimerSlot     string        // Non-empty when the action acquired a timer
	TimerLabel    string        // Label the timer slot was acquired under
	TimerDuration time.Duration // Residual duration for recreating a cancelled timer
	CreatedAt     time.Time
}

// UndoRing is a per-conversation ring of recent actions. Pushing past the
// depth evicts the oldest slot; Pop returns the most recent.
type UndoRing struct {
	mu    sync.Mutex
	depth int
	slots []UndoSlot
}

// NewUndoRing creates a ring with the given depth.
func NewUndoRing(depth int) *UndoRing {
	if depth <= 0 {
		depth = DefaultUndoDepth
	}
	return &UndoRing{depth: depth}
}

// Push records an executed action.
func (r *UndoRing) Push(slot UndoSlot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots = append(r.slots, slot)
	if len(r.slots) > r.depth {
		r.slots = r.slots[len(r.slots)-r.depth:]
	}
}

// Pop removes and returns the most recent slot. ok is false when empty.
func (r *UndoRing) Pop() (UndoSlot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.slots) == 0 {
		return UndoSlot{}, false
	}
	slot := r.slots[len(r.slots)-1]
	r.slots = r.slots[:len(r.slots)-1]
	return slot, true
}

// Remove deletes the slots the predicate matches, preserving order.
// Cancelling a timer uses this to drop the stale timer-create slot.
func (r *UndoRing) Remove(match func(UndoSlot) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.slots[:0]
	for _, s := range r.slots {
		if !match(s) {
			kept = append(kept, s)
		}
	}
	r.slots = kept
}

// Len reports the current slot count.
func (r *UndoRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// UndoStore hands out the undo ring for a conversation, creating it on
// first use.
type UndoStore struct {
	mu    sync.Mutex
	depth int
	rings map[string]*UndoRing
}

// NewUndoStore creates a store whose rings use the given depth.
func NewUndoStore(depth int) *UndoStore {
	if depth <= 0 {
		depth = DefaultUndoDepth
	}
	return &UndoStore{depth: depth, rings: make(map[string]*UndoRing)}
}

// Ring returns the ring for the conversation.
func (s *UndoStore) Ring(conversationID string) *UndoRing {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring, ok := s.rings[conversationID]
	if !ok {
		ring = NewUndoRing(s.depth)
		s.rings[conversationID] = ring
	}
	return ring
}
