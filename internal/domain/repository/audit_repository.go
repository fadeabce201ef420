package repository

import (
	"context"

	"github.com/barnabee/barnabee/internal/domain/entity"
)

// AuditRepository is the append-only audit sink. Appends for one
// conversation must be delivered in submission order; entries may be
// soft-deleted but never erased within retention.
type AuditRepository interface {
	Append(ctx context.Context, e *entity.AuditEntry) error
	FindByConversation(ctx context.Context, conversationID string, limit int) ([]*entity.AuditEntry, error)
	SoftDelete(ctx context.Context, id, reason string) error
}
