package nlu

import (
	"context"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"go.uber.org/zap"
)

// ClassifierConfig holds the cascade thresholds and deadline.
type ClassifierConfig struct {
	PatternThreshold   float64       // Accept pattern matches at or above (default 0.85)
	HeuristicThreshold float64       // Accept heuristic guesses at or above (default 0.7)
	ModelEnabled       bool          // Whether the model tier may run
	CascadeDeadline    time.Duration // Total budget for all tiers (default 600ms)
}

// DefaultClassifierConfig returns the built-in cascade tunables.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		PatternThreshold:   0.85,
		HeuristicThreshold: 0.7,
		ModelEnabled:       true,
		CascadeDeadline:    600 * time.Millisecond,
	}
}

// modelExempt are intents the heuristic tier may pick that never justify a
// model call: the heuristic answer is already as good as the model's.
var modelExempt = map[entity.Intent]bool{
	entity.IntentGesture: true,
	entity.IntentInstant: true,
}

// Classifier is the tiered cascade facade: pattern -> heuristic -> model,
// under one deadline. It never returns an error; when no tier produces a
// confident answer in time, the result is the fallback classification.
type Classifier struct {
	patterns   *PatternMatcher
	heuristics *HeuristicClassifier
	model      *ModelClassifier // Nil when the model tier is disabled
	config     ClassifierConfig
	logger     *zap.Logger
}

// NewClassifier builds the cascade. model may be nil.
func NewClassifier(patterns *PatternMatcher, heuristics *HeuristicClassifier, model *ModelClassifier, config ClassifierConfig, logger *zap.Logger) *Classifier {
	if config.PatternThreshold <= 0 {
		config.PatternThreshold = 0.85
	}
	if config.HeuristicThreshold <= 0 {
		config.HeuristicThreshold = 0.7
	}
	if config.CascadeDeadline <= 0 {
		config.CascadeDeadline = 600 * time.Millisecond
	}
	return &Classifier{
		patterns:   patterns,
		heuristics: heuristics,
		model:      model,
		config:     config,
		logger:     logger.With(zap.String("component", "classifier")),
	}
}

// Classify runs the cascade over the normalized text. raw is the original
// utterance, consulted by the heuristic tier for trailing punctuation cues.
func (c *Classifier) Classify(ctx context.Context, normalized, raw string) entity.Classification {
	ctx, cancel := context.WithTimeout(ctx, c.config.CascadeDeadline)
	defer cancel()

	// Tier 1: pattern match. Exactly at threshold counts as confident.
	if match, ok := c.patterns.Match(normalized); ok {
		if match.Confidence >= c.config.PatternThreshold {
			return match
		}
		c.logger.Debug("Pattern match below threshold",
			zap.String("pattern", match.PatternID),
			zap.Float64("confidence", match.Confidence),
		)
	}

	if ctx.Err() != nil {
		return entity.FallbackClassification()
	}

	// Tier 2: keyword heuristics.
	guess := c.heuristics.Classify(normalized, raw)
	if guess.Confidence >= c.config.HeuristicThreshold {
		return guess
	}

	// Tier 3: model, unless disabled, exempt or out of budget.
	if c.model == nil || !c.config.ModelEnabled || modelExempt[guess.Intent] {
		return entity.FallbackClassification()
	}
	if ctx.Err() != nil {
		return entity.FallbackClassification()
	}

	verdict, err := c.model.Classify(ctx, normalized)
	if err != nil {
		return entity.FallbackClassification()
	}
	return verdict
}
