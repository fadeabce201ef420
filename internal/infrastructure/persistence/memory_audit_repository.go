package persistence

import (
	"context"
	"sync"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/internal/domain/repository"
	apperrors "github.com/barnabee/barnabee/pkg/errors"
)

// InMemoryAuditRepository is the slice-backed AuditRepository used by the
// REPL and tests. The slice preserves submission order.
type InMemoryAuditRepository struct {
	mu      sync.RWMutex
	entries []*entity.AuditEntry
}

var _ repository.AuditRepository = (*InMemoryAuditRepository)(nil)

// NewInMemoryAuditRepository creates an empty store.
func NewInMemoryAuditRepository() *InMemoryAuditRepository {
	return &InMemoryAuditRepository{}
}

func (r *InMemoryAuditRepository) Append(_ context.Context, e *entity.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *InMemoryAuditRepository) FindByConversation(_ context.Context, conversationID string, limit int) ([]*entity.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entity.AuditEntry
	for _, e := range r.entries {
		if e.ConversationID == conversationID && !e.Deleted {
			cp := *e
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *InMemoryAuditRepository) SoftDelete(_ context.Context, id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			e.Deleted = true
			e.Reason = reason
			return nil
		}
	}
	return apperrors.NewNotFound("audit entry not found: " + id)
}

// All returns a copy of every entry, soft-deleted included. Tests only.
func (r *InMemoryAuditRepository) All() []*entity.AuditEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.AuditEntry, len(r.entries))
	for i, e := range r.entries {
		cp := *e
		out[i] = &cp
	}
	return out
}
