package memory

import (
	"math"
	"testing"
	"time"
)

func TestEffectiveImportanceFreshMemory(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := New("sam is allergic to peanuts", TypeSignificant, 0.9, []string{"alex"}, nil)
	m.CreatedAt = now
	m.LastAccessed = now

	// Zero elapsed time: decay 1.0, access bonus 0.5.
	want := 0.9 * 1.0 * 1.0 * 0.5
	got := m.EffectiveImportance(now, 30)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("effective = %v, want %v", got, want)
	}
}

func TestEffectiveImportanceMonotoneDecay(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := New("prefers oat milk", TypePreference, 0.7, nil, nil)
	m.LastAccessed = base

	prev := m.EffectiveImportance(base, 30)
	for days := 1; days <= 365; days *= 2 {
		now := base.AddDate(0, 0, days)
		got := m.EffectiveImportance(now, 30)
		if got > prev {
			t.Fatalf("importance rose from %v to %v at day %d", prev, got, days)
		}
		prev = got
	}
}

func TestEffectiveImportanceFloor(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	m := New("passing remark", TypeTransient, 0.1, nil, nil)
	m.LastAccessed = base

	// Years later a transient memory has decayed to nothing; the floor
	// must hold.
	got := m.EffectiveImportance(base.AddDate(5, 0, 0), 30)
	if got != MinimumImportanceFloor {
		t.Errorf("effective = %v, want floor %v", got, MinimumImportanceFloor)
	}
}

func TestDecayHalfLifeByType(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// An observation (multiplier 1.0) after exactly one base half-life.
	m := New("watched a movie", TypeObservation, 0.5, nil, nil)
	m.LastAccessed = base
	got := m.DecayFactor(base.AddDate(0, 0, 30), 30)
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("observation decay after one half-life = %v, want 0.5", got)
	}

	// A significant memory (multiplier 3.0) decays three times slower.
	s := New("graduated", TypeSignificant, 0.9, nil, nil)
	s.LastAccessed = base
	got = s.DecayFactor(base.AddDate(0, 0, 90), 30)
	if math.Abs(got-0.5) > 1e-9 {
		t.Errorf("significant decay after 90 days = %v, want 0.5", got)
	}
}

func TestAccessBonusSaturates(t *testing.T) {
	m := New("x", TypeRoutine, 0.5, nil, nil)
	if got := m.AccessBonus(); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("bonus with no accesses = %v, want 0.5", got)
	}
	m.AccessCount = 1 << 30
	if got := m.AccessBonus(); got != 1.0 {
		t.Errorf("bonus must cap at 1.0, got %v", got)
	}
}

func TestTouch(t *testing.T) {
	m := New("x", TypeRoutine, 0.5, nil, nil)
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	m.Touch(at)
	if !m.LastAccessed.Equal(at) || m.AccessCount != 1 {
		t.Errorf("touch not applied: %v %d", m.LastAccessed, m.AccessCount)
	}
}

func TestNewClampsImportance(t *testing.T) {
	if m := New("x", TypePreference, 7, nil, nil); m.BaseImportance != 1 {
		t.Errorf("importance = %v, want clamped 1", m.BaseImportance)
	}
	if m := New("x", TypePreference, -1, nil, nil); m.BaseImportance != 0 {
		t.Errorf("importance = %v, want clamped 0", m.BaseImportance)
	}
}

func TestOwnershipAndTags(t *testing.T) {
	m := New("x", TypePreference, 0.5, []string{"sam"}, []string{"food"})
	if !m.OwnedBy("sam") || m.OwnedBy("alex") {
		t.Error("ownership check wrong")
	}
	if !m.HasTag("food") || m.HasTag("music") {
		t.Error("tag check wrong")
	}
}
