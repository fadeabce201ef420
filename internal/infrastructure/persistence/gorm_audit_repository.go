package persistence

import (
	"context"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/internal/domain/repository"
	"github.com/barnabee/barnabee/internal/infrastructure/persistence/models"
	apperrors "github.com/barnabee/barnabee/pkg/errors"
	"gorm.io/gorm"
)

// GormAuditRepository is the append-only audit store. The auto-increment
// sequence column preserves per-conversation submission order.
type GormAuditRepository struct {
	db *gorm.DB
}

var _ repository.AuditRepository = (*GormAuditRepository)(nil)

// NewGormAuditRepository creates the repository.
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// Append inserts one entry. Entries are never updated through this path.
func (r *GormAuditRepository) Append(ctx context.Context, e *entity.AuditEntry) error {
	if err := r.db.WithContext(ctx).Create(models.FromAuditEntry(e)).Error; err != nil {
		return apperrors.Wrap(apperrors.CodePermanentExternal, "append audit entry", err)
	}
	return nil
}

// FindByConversation returns the most recent entries for a conversation in
// submission order, soft-deleted ones excluded.
func (r *GormAuditRepository) FindByConversation(ctx context.Context, conversationID string, limit int) ([]*entity.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.AuditModel
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND deleted = ?", conversationID, false).
		Order("seq desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodePermanentExternal, "find audit entries", err)
	}

	// Reverse into submission order.
	out := make([]*entity.AuditEntry, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = rows[i].ToAuditEntry()
	}
	return out, nil
}

// SoftDelete marks an entry deleted with a reason. The row remains for
// retention.
func (r *GormAuditRepository) SoftDelete(ctx context.Context, id, reason string) error {
	result := r.db.WithContext(ctx).
		Model(&models.AuditModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"deleted":       true,
			"delete_reason": reason,
		})
	if result.Error != nil {
		return apperrors.Wrap(apperrors.CodePermanentExternal, "soft delete audit entry", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("audit entry not found: " + id)
	}
	return nil
}
