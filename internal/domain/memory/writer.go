package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/internal/domain/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WriterConfig holds mutation and maintenance tunables.
type WriterConfig struct {
	ReinforceDelta   float64 // Added to base importance per reinforcement (default 0.1)
	ArchiveThreshold float64 // Archive below this effective importance (default 0.10)
	DeleteAfterDays  int     // Purge archived records older than this (default 90)
	BaseHalfLifeDays float64 // Shared with retrieval scoring (default 30)
}

// DefaultWriterConfig returns the built-in maintenance tunables.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		ReinforceDelta:   0.1,
		ArchiveThreshold: 0.10,
		DeleteAfterDays:  90,
		BaseHalfLifeDays: 30,
	}
}

// Writer owns all memory mutations: create, soft delete, reinforce and the
// scheduled maintenance pass. Every mutation is mirrored to the audit log;
// audit failures are logged and never block the mutation.
type Writer struct {
	repo     Repository
	index    VectorIndex
	embedder Embedder
	audit    repository.AuditRepository
	config   WriterConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewWriter creates a writer.
func NewWriter(repo Repository, index VectorIndex, embedder Embedder, audit repository.AuditRepository, config WriterConfig, logger *zap.Logger) *Writer {
	if config.ReinforceDelta <= 0 {
		config.ReinforceDelta = 0.1
	}
	if config.ArchiveThreshold <= 0 {
		config.ArchiveThreshold = 0.10
	}
	if config.DeleteAfterDays <= 0 {
		config.DeleteAfterDays = 90
	}
	if config.BaseHalfLifeDays <= 0 {
		config.BaseHalfLifeDays = 30
	}
	return &Writer{
		repo:     repo,
		index:    index,
		embedder: embedder,
		audit:    audit,
		config:   config,
		logger:   logger.With(zap.String("component", "memory-writer")),
		now:      time.Now,
	}
}

// SetClock overrides the clock. Tests only.
func (w *Writer) SetClock(now func() time.Time) { w.now = now }

// Create embeds, persists and indexes a new memory.
func (w *Writer) Create(ctx context.Context, m *Memory) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.SchemaVersion == 0 {
		m.SchemaVersion = SchemaVersion
	}

	vec, err := w.embedder.Embed(ctx, m.Content)
	if err != nil {
		return fmt.Errorf("embed memory: %w", err)
	}
	m.Embedding = vec

	if err := w.repo.Save(ctx, m); err != nil {
		return fmt.Errorf("save memory: %w", err)
	}
	if err := w.index.Upsert(m.ID, vec); err != nil {
		return fmt.Errorf("index memory: %w", err)
	}

	w.auditMutation(ctx, m.ID, "create", m.Content)
	return nil
}

// SoftDelete archives a memory. The record stays readable for audit until
// the maintenance pass purges it after the TTL.
func (w *Writer) SoftDelete(ctx context.Context, id, reason string) error {
	m, err := w.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if m.Archived {
		return nil
	}
	m.Archived = true
	if err := w.repo.Save(ctx, m); err != nil {
		return fmt.Errorf("archive memory: %w", err)
	}
	w.index.Remove(id)

	w.auditMutation(ctx, id, "soft_delete", reason)
	return nil
}

// Reinforce adds the configured delta to base importance, saturating at 1.0.
// Monotone non-decreasing.
func (w *Writer) Reinforce(ctx context.Context, id string) error {
	m, err := w.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	m.BaseImportance = clamp(m.BaseImportance+w.config.ReinforceDelta, 0, 1.0)
	m.Touch(w.now())
	if err := w.repo.Save(ctx, m); err != nil {
		return fmt.Errorf("reinforce memory: %w", err)
	}

	w.auditMutation(ctx, id, "reinforce", "")
	return nil
}

// MaintenanceStats summarizes one maintenance pass.
type MaintenanceStats struct {
	Scanned  int
	Archived int
	Purged   int
}

// RunMaintenance recomputes effective importance for every non-archived
// memory, archives the ones that decayed below the threshold, and purges
// archived records past the delete TTL.
func (w *Writer) RunMaintenance(ctx context.Context) (MaintenanceStats, error) {
	var stats MaintenanceStats
	now := w.now()

	all, err := w.repo.FindAll(ctx, true)
	if err != nil {
		return stats, err
	}

	cutoff := now.AddDate(0, 0, -w.config.DeleteAfterDays)
	for _, m := range all {
		if m.Archived {
			if m.LastAccessed.Before(cutoff) {
				if err := w.repo.Delete(ctx, m.ID); err != nil {
					w.logger.Warn("Purge failed", zap.String("id", m.ID), zap.Error(err))
					continue
				}
				w.auditMutation(ctx, m.ID, "purge", "archive TTL expired")
				stats.Purged++
			}
			continue
		}

		stats.Scanned++
		effective := m.EffectiveImportance(now, w.config.BaseHalfLifeDays)
		if effective < w.config.ArchiveThreshold {
			m.Archived = true
			if err := w.repo.Save(ctx, m); err != nil {
				w.logger.Warn("Archive failed", zap.String("id", m.ID), zap.Error(err))
				continue
			}
			w.index.Remove(m.ID)
			w.auditMutation(ctx, m.ID, "archive", fmt.Sprintf("effective importance %.3f below threshold", effective))
			stats.Archived++
		}
	}

	w.logger.Info("Memory maintenance completed",
		zap.Int("scanned", stats.Scanned),
		zap.Int("archived", stats.Archived),
		zap.Int("purged", stats.Purged),
	)
	return stats, nil
}

func (w *Writer) auditMutation(ctx context.Context, memoryID, op, detail string) {
	if w.audit == nil {
		return
	}
	entry := &entity.AuditEntry{
		ID:        uuid.NewString(),
		RequestID: memoryID,
		Handler:   "memory-writer",
		Intent:    entity.IntentMemory,
		Reason:    op + ": " + detail,
		Timestamp: w.now(),
	}
	if err := w.audit.Append(ctx, entry); err != nil {
		w.logger.Warn("Audit append for memory mutation failed",
			zap.String("memory_id", memoryID),
			zap.String("op", op),
			zap.Error(err),
		)
	}
}
