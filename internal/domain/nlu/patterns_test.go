package nlu

import (
	"testing"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"go.uber.org/zap"
)

func seedSet(t *testing.T) *PatternSet {
	t.Helper()
	set, warnings := NewPatternSet(SeedPatterns())
	if len(warnings) != 0 {
		t.Fatalf("seed patterns produced warnings: %v", warnings)
	}
	if err := set.Validate(); err != nil {
		t.Fatalf("seed patterns invalid: %v", err)
	}
	return set
}

func TestPatternSetPriorityOrder(t *testing.T) {
	set := seedSet(t)

	// Contains both an emergency cue and an action verb; emergency has
	// the higher priority group and must win.
	got, ok := set.Match("help me i've fallen and turn on the lights")
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Intent != entity.IntentEmergency {
		t.Errorf("intent = %s, want emergency", got.Intent)
	}
}

func TestPatternSetMatches(t *testing.T) {
	set := seedSet(t)

	tests := []struct {
		text       string
		wantIntent entity.Intent
	}{
		{"what time is it", entity.IntentInstant},
		{"tell me a joke", entity.IntentInstant},
		{"turn on the kitchen light", entity.IntentAction},
		{"undo that", entity.IntentAction},
		{"remember that sam is allergic to peanuts", entity.IntentMemory},
		{"is the front door locked", entity.IntentQuery},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := set.Match(tt.text)
			if !ok {
				t.Fatalf("no match for %q", tt.text)
			}
			if got.Intent != tt.wantIntent {
				t.Errorf("intent = %s, want %s", got.Intent, tt.wantIntent)
			}
			if got.Source != entity.SourcePattern {
				t.Errorf("source = %s, want pattern", got.Source)
			}
			if got.PatternID == "" {
				t.Error("pattern id not set")
			}
		})
	}
}

func TestPatternSetNoMatch(t *testing.T) {
	set := seedSet(t)
	if _, ok := set.Match("i had a rough day at work"); ok {
		t.Error("open-ended talk should not pattern-match")
	}
}

func TestNewPatternSetDisablesBadRegex(t *testing.T) {
	set, warnings := NewPatternSet([]PatternSpec{
		{ID: "bad", Regex: "([unclosed", Group: GroupAction},
		{ID: "good", Regex: "^turn on", Group: GroupAction, Confidence: 0.9},
	})
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want one", warnings)
	}
	if set.Len() != 2 {
		t.Errorf("Len = %d, want 2 (disabled patterns still counted)", set.Len())
	}
	if _, ok := set.Match("turn on the light"); !ok {
		t.Error("good pattern should still match")
	}
}

func TestPatternMatcherSwapRejectsInvalidSet(t *testing.T) {
	matcher := NewPatternMatcher(seedSet(t), zap.NewNop())
	before := matcher.Active()

	// A set missing required groups must be rejected.
	empty, _ := NewPatternSet([]PatternSpec{
		{ID: "only", Regex: "^hello$", Group: GroupGesture, Confidence: 0.9},
	})
	if err := matcher.Swap(empty); err == nil {
		t.Fatal("expected swap to fail validation")
	}
	if matcher.Active() != before {
		t.Error("active set replaced despite failed validation")
	}
}

func TestPatternMatcherSwapInstallsValidSet(t *testing.T) {
	matcher := NewPatternMatcher(seedSet(t), zap.NewNop())

	next := seedSet(t)
	if err := matcher.Swap(next); err != nil {
		t.Fatalf("swap failed: %v", err)
	}
	if matcher.Active() != next {
		t.Error("active set not replaced")
	}
}

func TestPatternConfidenceDefaulted(t *testing.T) {
	set, _ := NewPatternSet([]PatternSpec{
		{ID: "zero", Regex: "^ping$", Group: GroupQuery},
	})
	got, ok := set.Match("ping")
	if !ok {
		t.Fatal("expected match")
	}
	if got.Confidence != 0.9 {
		t.Errorf("confidence = %v, want defaulted 0.9", got.Confidence)
	}
}
