package nlu

import (
	"strings"

	"github.com/barnabee/barnabee/internal/domain/entity"
)

// commandVerbs mark an utterance as an Action when they lead it.
var commandVerbs = map[string]bool{
	"turn": true, "switch": true, "set": true, "open": true, "close": true,
	"lock": true, "unlock": true, "start": true, "stop": true, "play": true,
	"pause": true, "dim": true, "brighten": true, "activate": true,
	"deactivate": true,
}

// interrogatives mark an utterance as a Query when they lead it.
var interrogatives = map[string]bool{
	"what": true, "where": true, "when": true, "who": true, "which": true,
	"why": true, "how": true, "is": true, "are": true, "does": true,
	"do": true, "did": true,
}

// HeuristicClassifier is the keyword/shape tier of the cascade. It runs only
// when the pattern matcher misses, and produces confidences in [0.5, 0.8].
// Rules are ordered and short-circuit.
type HeuristicClassifier struct{}

// NewHeuristicClassifier creates the heuristic tier.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

// Classify applies the rules to the normalized text. The raw utterance is
// consulted only for the trailing question mark, which normalization strips.
func (h *HeuristicClassifier) Classify(normalized, raw string) entity.Classification {
	fields := strings.Fields(normalized)
	if len(fields) == 0 {
		return entity.Classification{
			Intent:     entity.IntentConversation,
			Confidence: 0.5,
			Source:     entity.SourceHeuristic,
		}
	}
	first := fields[0]

	switch {
	case commandVerbs[first]:
		return entity.Classification{
			Intent:     entity.IntentAction,
			Confidence: 0.75,
			Source:     entity.SourceHeuristic,
		}
	case strings.HasPrefix(normalized, "remember") ||
		strings.HasPrefix(normalized, "forget") ||
		strings.Contains(normalized, "what is my") ||
		strings.Contains(normalized, "what's my"):
		return entity.Classification{
			Intent:     entity.IntentMemory,
			Confidence: 0.7,
			Source:     entity.SourceHeuristic,
		}
	case interrogatives[first] || strings.HasSuffix(strings.TrimSpace(raw), "?"):
		return entity.Classification{
			Intent:     entity.IntentQuery,
			Confidence: 0.7,
			Source:     entity.SourceHeuristic,
		}
	default:
		// Everything else is open-ended talk.
		return entity.Classification{
			Intent:     entity.IntentConversation,
			Confidence: 0.5,
			Source:     entity.SourceHeuristic,
		}
	}
}
