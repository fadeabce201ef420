package home

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
	apperrors "github.com/barnabee/barnabee/pkg/errors"
	"go.uber.org/zap"
)

// fakePlatform serves a fixed entity list and records calls.
type fakePlatform struct {
	entities  []entity.HomeEntity
	listCalls atomic.Int64
	listErr   error
}

func (f *fakePlatform) ListEntities(context.Context) ([]entity.HomeEntity, error) {
	f.listCalls.Add(1)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.entities, nil
}

func (f *fakePlatform) GetState(_ context.Context, entityID string) (*entity.EntityState, error) {
	return &entity.EntityState{EntityID: entityID, State: "off"}, nil
}

func (f *fakePlatform) CallService(context.Context, entity.ServiceCall) error { return nil }

func (f *fakePlatform) SubscribeStateChanges(context.Context) (<-chan entity.EntityState, error) {
	ch := make(chan entity.EntityState)
	close(ch)
	return ch, nil
}

func householdPlatform() *fakePlatform {
	return &fakePlatform{entities: []entity.HomeEntity{
		{EntityID: "light.kitchen_main", Name: "Kitchen Light", Area: "kitchen", Floor: "ground", Domain: "light"},
		{EntityID: "light.kitchen_counter", Name: "Counter Light", Area: "kitchen", Floor: "ground", Domain: "light"},
		{EntityID: "light.bedroom", Name: "Bedroom Light", Area: "bedroom", Floor: "upstairs", Domain: "light"},
		{EntityID: "cover.kitchen_blinds", Name: "Kitchen Blinds", Area: "kitchen", Floor: "ground", Domain: "cover"},
		{EntityID: "lock.front_door", Name: "Front Door", Area: "hall", Floor: "ground", Domain: "lock"},
	}}
}

func testRegistry(t *testing.T, p Platform) *Registry {
	t.Helper()
	groups := map[string][]string{
		"movie lights": {"light.kitchen_main", "light.bedroom"},
	}
	return NewRegistry(p, 5*time.Minute, groups, zap.NewNop())
}

func TestResolveExactName(t *testing.T) {
	r := testRegistry(t, householdPlatform())
	got := r.Resolve(context.Background(), "kitchen light", "")
	if len(got) != 1 || got[0].EntityID != "light.kitchen_main" {
		t.Fatalf("resolve = %+v", got)
	}
}

func TestResolveNamedGroup(t *testing.T) {
	r := testRegistry(t, householdPlatform())
	got := r.Resolve(context.Background(), "movie lights", "")
	if len(got) != 2 {
		t.Fatalf("group resolve = %+v", got)
	}
}

func TestResolveFuzzyName(t *testing.T) {
	r := testRegistry(t, householdPlatform())
	// One transposition away from "kitchen light".
	got := r.Resolve(context.Background(), "kitchen lihgt", "")
	if len(got) != 1 || got[0].EntityID != "light.kitchen_main" {
		t.Fatalf("fuzzy resolve = %+v", got)
	}
}

func TestResolveAreaWithDomainHint(t *testing.T) {
	r := testRegistry(t, householdPlatform())
	got := r.Resolve(context.Background(), "kitchen", "light")
	if len(got) != 2 {
		t.Fatalf("area resolve = %+v", got)
	}
	for _, e := range got {
		if e.Domain != "light" {
			t.Errorf("domain hint ignored: %+v", e)
		}
	}
}

func TestResolveFloor(t *testing.T) {
	r := testRegistry(t, householdPlatform())
	got := r.Resolve(context.Background(), "upstairs", "")
	if len(got) != 1 || got[0].EntityID != "light.bedroom" {
		t.Fatalf("floor resolve = %+v", got)
	}
}

func TestResolveMiss(t *testing.T) {
	r := testRegistry(t, householdPlatform())
	if got := r.Resolve(context.Background(), "the moon base", ""); len(got) != 0 {
		t.Errorf("unexpected resolution: %+v", got)
	}
}

func TestRegistryCachesWithinTTL(t *testing.T) {
	p := householdPlatform()
	r := testRegistry(t, p)
	ctx := context.Background()

	r.Resolve(ctx, "kitchen light", "")
	r.Resolve(ctx, "bedroom light", "")
	if calls := p.listCalls.Load(); calls != 1 {
		t.Errorf("platform listed %d times within TTL, want 1", calls)
	}
}

func TestRegistryStaleFallback(t *testing.T) {
	p := householdPlatform()
	r := NewRegistry(p, time.Nanosecond, nil, zap.NewNop())
	ctx := context.Background()

	if got := r.Resolve(ctx, "kitchen light", ""); len(got) != 1 {
		t.Fatalf("initial resolve failed: %+v", got)
	}

	// Platform goes down; the TTL has passed, but the stale cache must
	// keep answering.
	p.listErr = apperrors.NewTransient("platform offline", nil)
	if got := r.Resolve(ctx, "kitchen light", ""); len(got) != 1 {
		t.Errorf("stale cache not used: %+v", got)
	}
}

func TestKnown(t *testing.T) {
	r := testRegistry(t, householdPlatform())
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !r.Known("light.kitchen_main") {
		t.Error("known entity reported missing")
	}
	if r.Known("light.garage") {
		t.Error("unknown entity reported present")
	}
}
