package handler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/internal/domain/home"
	"go.uber.org/zap"
)

// recordingPlatform serves a fixed household and records every service
// call. Targets in failTargets reject their calls.
type recordingPlatform struct {
	mu          sync.Mutex
	entities    []entity.HomeEntity
	states      map[string]entity.EntityState
	calls       []entity.ServiceCall
	failTargets map[string]bool
}

func newRecordingPlatform() *recordingPlatform {
	return &recordingPlatform{
		entities: []entity.HomeEntity{
			{EntityID: "light.kitchen_main", Name: "Kitchen Light", Area: "kitchen", Floor: "ground", Domain: "light"},
			{EntityID: "light.bedroom", Name: "Bedroom Light", Area: "bedroom", Floor: "upstairs", Domain: "light"},
			{EntityID: "lock.front_door", Name: "Front Door", Area: "hall", Floor: "ground", Domain: "lock"},
			{EntityID: "climate.hallway", Name: "Hallway Thermostat", Area: "hall", Floor: "ground", Domain: "climate"},
		},
		states:      make(map[string]entity.EntityState),
		failTargets: make(map[string]bool),
	}
}

func (p *recordingPlatform) ListEntities(context.Context) ([]entity.HomeEntity, error) {
	return p.entities, nil
}

func (p *recordingPlatform) GetState(_ context.Context, entityID string) (*entity.EntityState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.states[entityID]; ok {
		return &st, nil
	}
	return &entity.EntityState{EntityID: entityID, State: "off"}, nil
}

func (p *recordingPlatform) CallService(_ context.Context, call entity.ServiceCall) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failTargets[call.Target] {
		return fmt.Errorf("device %s unreachable", call.Target)
	}
	p.calls = append(p.calls, call)
	return nil
}

func (p *recordingPlatform) SubscribeStateChanges(context.Context) (<-chan entity.EntityState, error) {
	ch := make(chan entity.EntityState)
	close(ch)
	return ch, nil
}

func (p *recordingPlatform) recorded() []entity.ServiceCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entity.ServiceCall, len(p.calls))
	copy(out, p.calls)
	return out
}

func actionFixture(p *recordingPlatform) *ActionHandler {
	registry := home.NewRegistry(p, 5*time.Minute, nil, zap.NewNop())
	undo := home.NewUndoStore(5)
	timers := home.NewTimerPool([]string{"timer.slot_1"})
	return NewActionHandler(registry, p, undo, timers, zap.NewNop())
}

func actionInvocation(text, sub string) *Invocation {
	req := entity.NewRequest(text, "sam", "kitchen", "conv-1")
	req.Normalized = text
	return &Invocation{
		Request:        req,
		Classification: entity.Classification{Intent: entity.IntentAction, SubCategory: sub},
	}
}

func TestActionSingleDevice(t *testing.T) {
	p := newRecordingPlatform()
	h := actionFixture(p)

	got := h.Handle(context.Background(), actionInvocation("turn on the kitchen light", ""))
	if got.Status != entity.HandlerOK {
		t.Fatalf("status = %s: %s", got.Status, got.Text)
	}
	if got.Text != "Done, Kitchen Light." {
		t.Errorf("text = %q", got.Text)
	}

	calls := p.recorded()
	if len(calls) != 1 || calls[0].Service != "turn_on" || calls[0].Target != "light.kitchen_main" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestActionCompoundCarriesVerb(t *testing.T) {
	p := newRecordingPlatform()
	h := actionFixture(p)

	got := h.Handle(context.Background(), actionInvocation("turn on the kitchen light and the bedroom light", ""))
	if got.Status != entity.HandlerOK {
		t.Fatalf("status = %s: %s", got.Status, got.Text)
	}
	if len(p.recorded()) != 2 {
		t.Errorf("calls = %+v", p.recorded())
	}
}

func TestActionVerbAdaptsToDomain(t *testing.T) {
	p := newRecordingPlatform()
	h := actionFixture(p)

	// "open" implies a cover verb; against a lock it must become unlock.
	got := h.Handle(context.Background(), actionInvocation("open the front door", ""))
	if got.Status != entity.HandlerOK {
		t.Fatalf("status = %s: %s", got.Status, got.Text)
	}
	calls := p.recorded()
	if len(calls) != 1 || calls[0].Service != "unlock" || calls[0].Domain != "lock" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestActionBlockedDomain(t *testing.T) {
	p := newRecordingPlatform()
	h := actionFixture(p)

	inv := actionInvocation("unlock the front door", "")
	inv.Overrides = ResolvedOverrides{BlockedDomains: []string{"lock"}}

	got := h.Handle(context.Background(), inv)
	if got.Status != entity.HandlerPartial {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Text != "That's not allowed right now." {
		t.Errorf("text = %q", got.Text)
	}
	if len(p.recorded()) != 0 {
		t.Errorf("blocked action reached the platform: %+v", p.recorded())
	}
}

func TestActionUnresolvedTarget(t *testing.T) {
	p := newRecordingPlatform()
	h := actionFixture(p)

	got := h.Handle(context.Background(), actionInvocation("turn on the moon base", ""))
	if got.Status != entity.HandlerPartial {
		t.Fatalf("status = %s", got.Status)
	}
	if got.Diagnostics["unresolved"] != "moon base" {
		t.Errorf("diagnostics = %+v", got.Diagnostics)
	}
}

func TestActionPartialFailure(t *testing.T) {
	p := newRecordingPlatform()
	p.failTargets["light.bedroom"] = true
	h := actionFixture(p)

	got := h.Handle(context.Background(), actionInvocation("turn on the kitchen light and the bedroom light", ""))
	if got.Status != entity.HandlerPartial {
		t.Fatalf("status = %s: %s", got.Status, got.Text)
	}
	if got.Diagnostics["failed"] != "Bedroom Light" {
		t.Errorf("diagnostics = %+v", got.Diagnostics)
	}
}

func TestActionUndoRestoresSnapshot(t *testing.T) {
	p := newRecordingPlatform()
	p.states["light.kitchen_main"] = entity.EntityState{
		EntityID:   "light.kitchen_main",
		State:      "on",
		Attributes: map[string]any{"brightness": 180},
	}
	h := actionFixture(p)
	ctx := context.Background()

	if got := h.Handle(ctx, actionInvocation("turn off the kitchen light", "")); got.Status != entity.HandlerOK {
		t.Fatalf("action failed: %s", got.Text)
	}

	got := h.Handle(ctx, actionInvocation("undo that", "undo"))
	if got.Status != entity.HandlerOK || got.Text != "Undone." {
		t.Fatalf("undo = %s: %s", got.Status, got.Text)
	}

	calls := p.recorded()
	last := calls[len(calls)-1]
	if last.Service != "turn_on" || last.Target != "light.kitchen_main" {
		t.Errorf("undo call = %+v", last)
	}
	if last.Data["brightness"] != 180 {
		t.Errorf("brightness not restored: %+v", last.Data)
	}
}

func TestActionUndoEmpty(t *testing.T) {
	h := actionFixture(newRecordingPlatform())
	got := h.Handle(context.Background(), actionInvocation("undo that", "undo"))
	if got.Status != entity.HandlerPartial || got.Text != "There's nothing to undo." {
		t.Errorf("undo on empty ring = %s: %s", got.Status, got.Text)
	}
}

func TestActionTimerLifecycle(t *testing.T) {
	p := newRecordingPlatform()
	h := actionFixture(p)
	ctx := context.Background()

	got := h.Handle(ctx, actionInvocation("set a timer for 5 minutes for pasta", ""))
	if got.Status != entity.HandlerOK || got.Text != "Timer set for 5 minutes." {
		t.Fatalf("set = %s: %s", got.Status, got.Text)
	}
	calls := p.recorded()
	if calls[0].Domain != "timer" || calls[0].Service != "start" || calls[0].Data["duration"] != "5m0s" {
		t.Errorf("start call = %+v", calls[0])
	}

	// The single slot is taken.
	got = h.Handle(ctx, actionInvocation("set a timer for 1 minute", ""))
	if got.Status != entity.HandlerFailed {
		t.Errorf("exhausted pool = %s: %s", got.Status, got.Text)
	}

	got = h.Handle(ctx, actionInvocation("cancel the pasta timer", ""))
	if got.Status != entity.HandlerOK || got.Text != "Timer cancelled." {
		t.Fatalf("cancel = %s: %s", got.Status, got.Text)
	}

	// Slot freed, a new timer fits again.
	if got := h.Handle(ctx, actionInvocation("set a timer for 10 seconds", "")); got.Status != entity.HandlerOK {
		t.Errorf("reacquire = %s: %s", got.Status, got.Text)
	}
}

func TestActionCancelUndoRestartsTimer(t *testing.T) {
	p := newRecordingPlatform()
	h := actionFixture(p)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return start }

	if got := h.Handle(ctx, actionInvocation("set a timer for 10 minutes", "")); got.Status != entity.HandlerOK {
		t.Fatalf("set = %s: %s", got.Status, got.Text)
	}

	// Four minutes in, the cancel leaves six on the clock.
	h.now = func() time.Time { return start.Add(4 * time.Minute) }
	if got := h.Handle(ctx, actionInvocation("cancel my timer", "")); got.Status != entity.HandlerOK {
		t.Fatalf("cancel = %s: %s", got.Status, got.Text)
	}

	got := h.Handle(ctx, actionInvocation("undo that", "undo"))
	if got.Status != entity.HandlerOK {
		t.Fatalf("undo = %s: %s", got.Status, got.Text)
	}
	if got.Text != "Timer's back on with 6 minutes left." {
		t.Errorf("text = %q", got.Text)
	}

	calls := p.recorded()
	last := calls[len(calls)-1]
	if last.Domain != "timer" || last.Service != "start" || last.Data["duration"] != "6m0s" {
		t.Errorf("restart call = %+v", last)
	}

	// The restarted timer is undoable in turn: undo cancels it again.
	if got := h.Handle(ctx, actionInvocation("undo that", "undo")); got.Text != "Timer cancelled." {
		t.Errorf("second undo = %q", got.Text)
	}
}

func TestActionCancelExpiredTimerLeavesNothingToUndo(t *testing.T) {
	p := newRecordingPlatform()
	h := actionFixture(p)
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return start }

	if got := h.Handle(ctx, actionInvocation("set a timer for 1 minute", "")); got.Status != entity.HandlerOK {
		t.Fatalf("set = %s: %s", got.Status, got.Text)
	}

	// Cancelled after it already ran out; there is nothing to restart, and
	// the create slot must not linger either.
	h.now = func() time.Time { return start.Add(2 * time.Minute) }
	if got := h.Handle(ctx, actionInvocation("cancel my timer", "")); got.Status != entity.HandlerOK {
		t.Fatalf("cancel = %s: %s", got.Status, got.Text)
	}

	got := h.Handle(ctx, actionInvocation("undo that", "undo"))
	if got.Status != entity.HandlerPartial || got.Text != "There's nothing to undo." {
		t.Errorf("undo after expired cancel = %s: %s", got.Status, got.Text)
	}
}

func TestActionAreaExpansionWithoutArticle(t *testing.T) {
	p := newRecordingPlatform()
	h := actionFixture(p)

	got := h.Handle(context.Background(), actionInvocation("turn on lights in kitchen", ""))
	if got.Status != entity.HandlerOK {
		t.Fatalf("status = %s: %s", got.Status, got.Text)
	}
	calls := p.recorded()
	if len(calls) != 1 || calls[0].Target != "light.kitchen_main" || calls[0].Service != "turn_on" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestActionThermostatSetpoint(t *testing.T) {
	p := newRecordingPlatform()
	p.states["climate.hallway"] = entity.EntityState{
		EntityID:   "climate.hallway",
		State:      "heat",
		Attributes: map[string]any{"temperature": 70},
	}
	h := actionFixture(p)
	ctx := context.Background()

	got := h.Handle(ctx, actionInvocation("set the thermostat to 72", ""))
	if got.Status != entity.HandlerOK {
		t.Fatalf("status = %s: %s", got.Status, got.Text)
	}
	if got.Text != "Set Hallway Thermostat to 72." {
		t.Errorf("text = %q", got.Text)
	}
	calls := p.recorded()
	if len(calls) != 1 || calls[0].Service != "set_temperature" || calls[0].Data["temperature"] != 72 {
		t.Errorf("calls = %+v", calls)
	}

	// Undo restores the prior setpoint.
	got = h.Handle(ctx, actionInvocation("undo that", "undo"))
	if got.Status != entity.HandlerOK {
		t.Fatalf("undo = %s: %s", got.Status, got.Text)
	}
	calls = p.recorded()
	last := calls[len(calls)-1]
	if last.Service != "set_temperature" || last.Data["temperature"] != 70 {
		t.Errorf("undo call = %+v", last)
	}
}

func TestActionSetpointNonClimateFallsThrough(t *testing.T) {
	p := newRecordingPlatform()
	h := actionFixture(p)

	// No climate entity answers to "the oven"; the clause parser takes over
	// and reports the miss instead of a bogus setpoint call.
	got := h.Handle(context.Background(), actionInvocation("set the oven temperature to 400", ""))
	if got.Status != entity.HandlerPartial {
		t.Fatalf("status = %s: %s", got.Status, got.Text)
	}
	if len(p.recorded()) != 0 {
		t.Errorf("unexpected calls: %+v", p.recorded())
	}
}

