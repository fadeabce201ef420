package entity

import "time"

// AuditEntry is the append-only record of one processed request. Entries may
// be soft-deleted but are never erased while within retention; per
// conversation they are totally ordered by request timestamp.
type AuditEntry struct {
	ID             string    `json:"id"`
	RequestID      string    `json:"request_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Speaker        string    `json:"speaker,omitempty"`
	Utterance      string    `json:"utterance"`
	ResponseText   string    `json:"response_text"`
	Intent         Intent    `json:"intent"`
	Handler        string    `json:"handler"`
	AlertFlag      bool      `json:"alert_flag"` // Set by the safety monitor
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Deleted        bool      `json:"deleted"` // Soft delete only
}
