package nlu

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/internal/domain/service"
	apperrors "github.com/barnabee/barnabee/pkg/errors"
	"go.uber.org/zap"
)

const classifyPrompt = `Classify the user utterance into exactly one intent:
instant, action, query, conversation, memory, emergency, gesture.
Respond with ONLY a JSON object: {"intent": "...", "confidence": 0.0-1.0, "sub_category": "..."}.
No prose, no markdown fences.`

// ModelClassifier is the last cascade tier. It asks the language model for a
// strict JSON classification under a hard deadline. It fails soft: every
// failure mode returns an error that the facade converts into the fallback
// classification, never a panic or a propagated fault.
type ModelClassifier struct {
	llm      service.LLMClient
	model    string
	deadline time.Duration
	logger   *zap.Logger
}

// NewModelClassifier creates the model tier. deadline <= 0 uses 500ms.
func NewModelClassifier(llm service.LLMClient, model string, deadline time.Duration, logger *zap.Logger) *ModelClassifier {
	if deadline <= 0 {
		deadline = 500 * time.Millisecond
	}
	return &ModelClassifier{
		llm:      llm,
		model:    model,
		deadline: deadline,
		logger:   logger.With(zap.String("component", "model-classifier")),
	}
}

// modelVerdict is the strict response shape expected from the model.
type modelVerdict struct {
	Intent      string  `json:"intent"`
	Confidence  float64 `json:"confidence"`
	SubCategory string  `json:"sub_category,omitempty"`
}

// Classify asks the model for an intent. Timeout, network error, malformed
// output and out-of-range confidence all return an error.
func (c *ModelClassifier) Classify(ctx context.Context, text string) (entity.Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	resp, err := c.llm.Complete(ctx, &service.CompletionRequest{
		Messages: []service.Message{
			{Role: "system", Content: classifyPrompt},
			{Role: "user", Content: text},
		},
		Model:       c.model,
		MaxTokens:   80,
		Temperature: 0,
	})
	if err != nil {
		c.logger.Debug("Model classification failed", zap.Error(err))
		return entity.Classification{}, err
	}

	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		c.logger.Debug("Model classification unparseable",
			zap.String("raw", resp.Content),
			zap.Error(err),
		)
		return entity.Classification{}, err
	}

	intent := entity.Intent(verdict.Intent)
	if !intent.Valid() || intent == entity.IntentUnknown {
		return entity.Classification{}, apperrors.NewPermanent("model returned unknown intent "+verdict.Intent, nil)
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return entity.Classification{}, apperrors.NewInvariant("model confidence out of range")
	}

	return entity.Classification{
		Intent:      intent,
		SubCategory: verdict.SubCategory,
		Confidence:  verdict.Confidence,
		Source:      entity.SourceModel,
	}, nil
}

// parseVerdict extracts the JSON object from the model output, tolerating
// accidental markdown fences but nothing else.
func parseVerdict(raw string) (modelVerdict, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var v modelVerdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return modelVerdict{}, apperrors.Wrap(apperrors.CodePermanentExternal, "malformed classification response", err)
	}
	return v, nil
}
