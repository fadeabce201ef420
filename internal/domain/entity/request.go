package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request is one inbound utterance. Speech-to-text happens upstream; the
// core only ever sees text.
type Request struct {
	ID             string    `json:"id"`
	Utterance      string    `json:"utterance"`
	Speaker        string    `json:"speaker,omitempty"` // Opaque identity supplied by the caller
	Room           string    `json:"room,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`

	// Normalized is filled by the preprocessor; the raw Utterance is kept
	// for handlers that quote the speaker back (memory store, safety scan).
	Normalized string `json:"-"`
}

// NewRequest builds a request with a generated id and the current time.
func NewRequest(utterance, speaker, room, conversationID string) *Request {
	return &Request{
		ID:             uuid.NewString(),
		Utterance:      utterance,
		Speaker:        speaker,
		Room:           room,
		ConversationID: conversationID,
		Timestamp:      time.Now(),
	}
}

// Text returns the normalized form when available, the raw utterance otherwise.
func (r *Request) Text() string {
	if r.Normalized != "" {
		return r.Normalized
	}
	return strings.TrimSpace(r.Utterance)
}

// Response is the single emission point of the pipeline.
type Response struct {
	Text      string `json:"text"`
	Intent    Intent `json:"intent"`
	Handler   string `json:"handler"`
	LatencyMS int64  `json:"latency_ms"`
	TraceID   string `json:"trace_id"`
}
