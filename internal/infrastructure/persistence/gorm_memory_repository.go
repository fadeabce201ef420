package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/barnabee/barnabee/internal/domain/memory"
	"github.com/barnabee/barnabee/internal/infrastructure/persistence/models"
	apperrors "github.com/barnabee/barnabee/pkg/errors"
	"gorm.io/gorm"
)

// GormMemoryRepository stores memory records with the embedding sidecar
// table alongside.
type GormMemoryRepository struct {
	db *gorm.DB
}

var _ memory.Repository = (*GormMemoryRepository)(nil)

// NewGormMemoryRepository creates the repository.
func NewGormMemoryRepository(db *gorm.DB) *GormMemoryRepository {
	return &GormMemoryRepository{db: db}
}

// Save upserts the record and, when the memory carries an embedding, the
// sidecar row, in one transaction.
func (r *GormMemoryRepository) Save(ctx context.Context, m *memory.Memory) error {
	model, err := models.FromMemory(m)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternalInvariant, "encode memory", err)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(model).Error; err != nil {
			return apperrors.Wrap(apperrors.CodePermanentExternal, "save memory", err)
		}
		if len(m.Embedding) == 0 {
			return nil
		}
		vec, err := json.Marshal(m.Embedding)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInternalInvariant, "encode embedding", err)
		}
		sidecar := &models.EmbeddingModel{
			MemoryID:  m.ID,
			Vector:    vec,
			Dimension: len(m.Embedding),
		}
		if err := tx.Save(sidecar).Error; err != nil {
			return apperrors.Wrap(apperrors.CodePermanentExternal, "save embedding", err)
		}
		return nil
	})
}

// FindByID loads one record without its embedding.
func (r *GormMemoryRepository) FindByID(ctx context.Context, id string) (*memory.Memory, error) {
	var model models.MemoryModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFound("memory not found: " + id)
		}
		return nil, apperrors.Wrap(apperrors.CodePermanentExternal, "find memory", err)
	}
	return model.ToMemory()
}

// FindByIDs loads the records that exist, skipping missing ids.
func (r *GormMemoryRepository) FindByIDs(ctx context.Context, ids []string) ([]*memory.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.MemoryModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodePermanentExternal, "find memories", err)
	}
	out := make([]*memory.Memory, 0, len(rows))
	for i := range rows {
		m, err := rows[i].ToMemory()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// FindAll returns every record, including archived ones when asked.
func (r *GormMemoryRepository) FindAll(ctx context.Context, includeArchived bool) ([]*memory.Memory, error) {
	q := r.db.WithContext(ctx).Model(&models.MemoryModel{})
	if !includeArchived {
		q = q.Where("archived = ?", false)
	}
	var rows []models.MemoryModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodePermanentExternal, "list memories", err)
	}
	out := make([]*memory.Memory, 0, len(rows))
	for i := range rows {
		m, err := rows[i].ToMemory()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// TouchAccess stamps last_accessed and bumps access_count in one update.
func (r *GormMemoryRepository) TouchAccess(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&models.MemoryModel{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"last_accessed": at,
			"access_count":  gorm.Expr("access_count + 1"),
		}).Error
	if err != nil {
		return apperrors.Wrap(apperrors.CodePermanentExternal, "touch access", err)
	}
	return nil
}

// Delete permanently removes a record and its sidecar row. Only the
// maintenance pass calls this.
func (r *GormMemoryRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.EmbeddingModel{}, "memory_id = ?", id).Error; err != nil {
			return apperrors.Wrap(apperrors.CodePermanentExternal, "delete embedding", err)
		}
		result := tx.Delete(&models.MemoryModel{}, "id = ?", id)
		if result.Error != nil {
			return apperrors.Wrap(apperrors.CodePermanentExternal, "delete memory", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.NewNotFound("memory not found: " + id)
		}
		return nil
	})
}

// ForEachEmbedding streams the sidecar rows of non-archived memories, for
// rebuilding the in-process vector index at startup.
func (r *GormMemoryRepository) ForEachEmbedding(ctx context.Context, fn func(id string, vec []float32) error) error {
	var rows []models.EmbeddingModel
	err := r.db.WithContext(ctx).
		Joins("JOIN memories ON memories.id = memory_embeddings.memory_id AND memories.archived = ?", false).
		Find(&rows).Error
	if err != nil {
		return apperrors.Wrap(apperrors.CodePermanentExternal, "list embeddings", err)
	}
	for i := range rows {
		var vec []float32
		if err := json.Unmarshal(rows[i].Vector, &vec); err != nil {
			return apperrors.Wrap(apperrors.CodeInternalInvariant, "decode embedding "+rows[i].MemoryID, err)
		}
		if err := fn(rows[i].MemoryID, vec); err != nil {
			return err
		}
	}
	return nil
}
