package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/barnabee/barnabee/internal/domain/memory"
	apperrors "github.com/barnabee/barnabee/pkg/errors"
)

// InMemoryMemoryRepository is the map-backed MemoryRepository used by the
// REPL and tests. Records are copied on the way in and out so callers
// never share mutable state with the store.
type InMemoryMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*memory.Memory
}

var _ memory.Repository = (*InMemoryMemoryRepository)(nil)

// NewInMemoryMemoryRepository creates an empty store.
func NewInMemoryMemoryRepository() *InMemoryMemoryRepository {
	return &InMemoryMemoryRepository{records: make(map[string]*memory.Memory)}
}

func (r *InMemoryMemoryRepository) Save(_ context.Context, m *memory.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.records[m.ID] = &cp
	return nil
}

func (r *InMemoryMemoryRepository) FindByID(_ context.Context, id string) (*memory.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.records[id]
	if !ok {
		return nil, apperrors.NewNotFound("memory not found: " + id)
	}
	cp := *m
	return &cp, nil
}

func (r *InMemoryMemoryRepository) FindByIDs(_ context.Context, ids []string) ([]*memory.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*memory.Memory, 0, len(ids))
	for _, id := range ids {
		if m, ok := r.records[id]; ok {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *InMemoryMemoryRepository) FindAll(_ context.Context, includeArchived bool) ([]*memory.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*memory.Memory, 0, len(r.records))
	for _, m := range r.records {
		if m.Archived && !includeArchived {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InMemoryMemoryRepository) TouchAccess(_ context.Context, ids []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if m, ok := r.records[id]; ok {
			m.Touch(at)
		}
	}
	return nil
}

func (r *InMemoryMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return apperrors.NewNotFound("memory not found: " + id)
	}
	delete(r.records, id)
	return nil
}
