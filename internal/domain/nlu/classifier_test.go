package nlu

import (
	"context"
	"testing"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"go.uber.org/zap"
)

func testClassifier(t *testing.T) *Classifier {
	t.Helper()
	matcher := NewPatternMatcher(seedSet(t), zap.NewNop())
	return NewClassifier(matcher, NewHeuristicClassifier(), nil, DefaultClassifierConfig(), zap.NewNop())
}

func TestClassifierPatternTierWins(t *testing.T) {
	c := testClassifier(t)
	got := c.Classify(context.Background(), "what time is it", "what time is it?")
	if got.Source != entity.SourcePattern {
		t.Fatalf("source = %s, want pattern", got.Source)
	}
	if got.Intent != entity.IntentInstant {
		t.Errorf("intent = %s, want instant", got.Intent)
	}
}

func TestClassifierHeuristicTier(t *testing.T) {
	c := testClassifier(t)
	// No pattern covers "activate ..."; the leading command verb does.
	got := c.Classify(context.Background(), "activate the porch light", "activate the porch light")
	if got.Source != entity.SourceHeuristic {
		t.Fatalf("source = %s, want heuristic", got.Source)
	}
	if got.Intent != entity.IntentAction {
		t.Errorf("intent = %s, want action", got.Intent)
	}
}

func TestClassifierFallbackWithoutModel(t *testing.T) {
	c := testClassifier(t)
	// Open-ended talk: no pattern, heuristic confidence 0.5 < 0.7, no
	// model tier wired. The cascade must degrade to conversation.
	got := c.Classify(context.Background(), "i had a rough day at work", "I had a rough day at work")
	if got.Intent != entity.IntentConversation {
		t.Errorf("intent = %s, want conversation", got.Intent)
	}
	if got.Source != entity.SourceFallback {
		t.Errorf("source = %s, want fallback", got.Source)
	}
}

func TestClassifierExpiredDeadlineFallsBack(t *testing.T) {
	matcher := NewPatternMatcher(seedSet(t), zap.NewNop())
	c := NewClassifier(matcher, NewHeuristicClassifier(), nil, ClassifierConfig{
		PatternThreshold:   0.85,
		HeuristicThreshold: 0.7,
		CascadeDeadline:    time.Nanosecond,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := c.Classify(ctx, "turn the hallway light on", "turn the hallway light on")
	// The pattern tier is pure computation and still answers; the point
	// is that an expired context never produces an error or a hang.
	if !got.Intent.Valid() {
		t.Errorf("invalid intent %q under cancelled context", got.Intent)
	}
}

func TestClassifierThresholdRejectsWeakPattern(t *testing.T) {
	set, _ := NewPatternSet([]PatternSpec{
		{ID: "weak", Regex: "^maybe do something$", Group: GroupAction, Confidence: 0.5},
	})
	matcher := NewPatternMatcher(set, zap.NewNop())
	c := NewClassifier(matcher, NewHeuristicClassifier(), nil, DefaultClassifierConfig(), zap.NewNop())

	got := c.Classify(context.Background(), "maybe do something", "maybe do something")
	if got.Source == entity.SourcePattern {
		t.Error("pattern below threshold must not be accepted")
	}
}
