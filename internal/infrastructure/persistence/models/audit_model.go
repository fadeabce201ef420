package models

import (
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
)

// AuditModel is the GORM mapping for one audit entry. The table is
// append-only: rows are soft-deleted via the Deleted flag, never removed.
type AuditModel struct {
	Seq            uint64 `gorm:"primaryKey;autoIncrement"` // Preserves per-conversation submission order
	ID             string `gorm:"uniqueIndex;size:64"`
	RequestID      string `gorm:"size:64;index"`
	ConversationID string `gorm:"size:64;index"`
	Speaker        string `gorm:"size:64"`
	Utterance      string `gorm:"type:text"`
	ResponseText   string `gorm:"type:text"`
	Intent         string `gorm:"size:32"`
	Handler        string `gorm:"size:32"`
	AlertFlag      bool   `gorm:"index"`
	Reason         string `gorm:"type:text"`
	Timestamp      time.Time
	Deleted        bool
	DeleteReason   string `gorm:"type:text"`
}

// TableName keeps the table name stable across GORM naming changes.
func (AuditModel) TableName() string { return "audit_entries" }

// FromAuditEntry converts a domain entry into its row form.
func FromAuditEntry(e *entity.AuditEntry) *AuditModel {
	return &AuditModel{
		ID:             e.ID,
		RequestID:      e.RequestID,
		ConversationID: e.ConversationID,
		Speaker:        e.Speaker,
		Utterance:      e.Utterance,
		ResponseText:   e.ResponseText,
		Intent:         string(e.Intent),
		Handler:        e.Handler,
		AlertFlag:      e.AlertFlag,
		Reason:         e.Reason,
		Timestamp:      e.Timestamp,
		Deleted:        e.Deleted,
	}
}

// ToAuditEntry converts a row back into the domain form.
func (am *AuditModel) ToAuditEntry() *entity.AuditEntry {
	return &entity.AuditEntry{
		ID:             am.ID,
		RequestID:      am.RequestID,
		ConversationID: am.ConversationID,
		Speaker:        am.Speaker,
		Utterance:      am.Utterance,
		ResponseText:   am.ResponseText,
		Intent:         entity.Intent(am.Intent),
		Handler:        am.Handler,
		AlertFlag:      am.AlertFlag,
		Reason:         am.Reason,
		Timestamp:      am.Timestamp,
		Deleted:        am.Deleted,
	}
}
