package entity

// Intent is the coarse category assigned to an utterance. It selects the
// handler that produces the response.
type Intent string

const (
	IntentInstant      Intent = "instant"      // Template-served: time, date, math, jokes
	IntentAction       Intent = "action"       // Smart-home service calls
	IntentQuery        Intent = "query"        // State questions against the platform
	IntentConversation Intent = "conversation" // Open-ended, model-backed chat
	IntentMemory       Intent = "memory"       // Explicit remember/forget/recall
	IntentEmergency    Intent = "emergency"    // Distress; highest pattern priority
	IntentGesture      Intent = "gesture"      // Greetings, thanks, acknowledgements
	IntentUnknown      Intent = "unknown"
)

// Valid reports whether i is one of the declared intents.
func (i Intent) Valid() bool {
	switch i {
	case IntentInstant, IntentAction, IntentQuery, IntentConversation,
		IntentMemory, IntentEmergency, IntentGesture, IntentUnknown:
		return true
	}
	return false
}

// ClassificationSource identifies which cascade tier produced a classification.
type ClassificationSource string

const (
	SourcePattern   ClassificationSource = "pattern"
	SourceHeuristic ClassificationSource = "heuristic"
	SourceModel     ClassificationSource = "model"
	SourceFallback  ClassificationSource = "fallback"
)

// Classification is the result of the intent cascade for one request.
// Created per request and discarded after the response.
type Classification struct {
	Intent      Intent               `json:"intent"`
	SubCategory string               `json:"sub_category,omitempty"`
	Confidence  float64              `json:"confidence"` // [0,1]
	Source      ClassificationSource `json:"source"`
	PatternID   string               `json:"pattern_id,omitempty"` // Set only for Source=pattern
}

// FallbackClassification is returned whenever the cascade cannot produce a
// confident answer within its deadline.
func FallbackClassification() Classification {
	return Classification{
		Intent:     IntentConversation,
		Confidence: 0.5,
		Source:     SourceFallback,
	}
}
