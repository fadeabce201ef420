package service

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RequestState represents the discrete stages of one request's lifetime in
// the pipeline.
type RequestState string

const (
	StateReceived         RequestState = "received"
	StateNormalized       RequestState = "normalized"
	StateClassified       RequestState = "classified"
	StateRetrievalDone    RequestState = "retrieval_done"
	StateRetrievalSkipped RequestState = "retrieval_skipped"
	StateHandled          RequestState = "handled"
	StateWritten          RequestState = "written" // Audit committed
	StateResponded        RequestState = "responded"
	StateFailed           RequestState = "failed"
)

// validTransitions defines the allowed state transitions.
// Key = from state, value = set of allowed target states.
var validTransitions = map[RequestState]map[RequestState]bool{
	StateReceived: {
		StateNormalized: true,
		StateFailed:     true, // Malformed input rejected before normalization completes
	},
	StateNormalized: {
		StateClassified: true,
		StateFailed:     true,
	},
	StateClassified: {
		StateRetrievalDone:    true,
		StateRetrievalSkipped: true,
		StateFailed:           true,
	},
	StateRetrievalDone: {
		StateHandled: true,
	},
	StateRetrievalSkipped: {
		StateHandled: true,
	},
	StateHandled: {
		StateWritten: true,
		StateFailed:  true,
	},
	StateWritten: {
		StateResponded: true,
	},
	// Terminal states
	StateResponded: {},
	StateFailed:    {},
}

// StateSnapshot captures a request's pipeline progress at a point in time.
type StateSnapshot struct {
	State     RequestState  `json:"state"`
	Intent    string        `json:"intent,omitempty"`
	Handler   string        `json:"handler,omitempty"`
	AlertFlag bool          `json:"alert_flag"`
	Elapsed   time.Duration `json:"elapsed"`
}

// RequestStateMachine tracks one request through the pipeline. The
// orchestrator owns the request's mutable state, but telemetry listeners may
// read transitions concurrently.
type RequestStateMachine struct {
	mu        sync.RWMutex
	state     RequestState
	intent    string
	handler   string
	alertFlag bool
	startTime time.Time
	logger    *zap.Logger

	listeners []func(from, to RequestState, snap StateSnapshot)
}

// NewRequestStateMachine creates a state machine starting in Received.
func NewRequestStateMachine(logger *zap.Logger) *RequestStateMachine {
	return &RequestStateMachine{
		state:     StateReceived,
		startTime: time.Now(),
		logger:    logger,
	}
}

// State returns the current state.
func (sm *RequestStateMachine) State() RequestState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// Snapshot returns a copy of the current progress.
func (sm *RequestStateMachine) Snapshot() StateSnapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.snapshotLocked()
}

func (sm *RequestStateMachine) snapshotLocked() StateSnapshot {
	return StateSnapshot{
		State:     sm.state,
		Intent:    sm.intent,
		Handler:   sm.handler,
		AlertFlag: sm.alertFlag,
		Elapsed:   time.Since(sm.startTime),
	}
}

// Transition attempts to move to a new state. Returns an error if the
// transition is not allowed.
func (sm *RequestStateMachine) Transition(to RequestState) error {
	sm.mu.Lock()
	from := sm.state

	allowed, ok := validTransitions[from]
	if !ok || !allowed[to] {
		sm.mu.Unlock()
		err := fmt.Errorf("invalid request state transition: %s -> %s", from, to)
		sm.logger.Error("State machine violation", zap.Error(err))
		return err
	}

	sm.state = to
	snap := sm.snapshotLocked()
	listeners := make([]func(from, to RequestState, snap StateSnapshot), len(sm.listeners))
	copy(listeners, sm.listeners)
	sm.mu.Unlock()

	sm.logger.Debug("Request state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)

	// Notify listeners outside the lock
	for _, fn := range listeners {
		fn(from, to, snap)
	}

	return nil
}

// OnTransition registers a listener called on every state change.
func (sm *RequestStateMachine) OnTransition(fn func(from, to RequestState, snap StateSnapshot)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, fn)
}

// SetIntent records the classified intent for snapshots.
func (sm *RequestStateMachine) SetIntent(intent string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.intent = intent
}

// SetHandler records the dispatched handler for snapshots.
func (sm *RequestStateMachine) SetHandler(handler string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.handler = handler
}

// FlagAlert marks the request as having raised a safety alert.
func (sm *RequestStateMachine) FlagAlert() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.alertFlag = true
}

// AlertFlagged reports whether the safety monitor raised an alert.
func (sm *RequestStateMachine) AlertFlagged() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.alertFlag
}

// IsTerminal reports whether the request has finished.
func (sm *RequestStateMachine) IsTerminal() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state == StateResponded || sm.state == StateFailed
}
