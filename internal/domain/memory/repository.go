package memory

import (
	"context"
	"time"
)

// Repository persists memory records. Writes are serialized per id by the
// implementation; readers see a consistent snapshot of a record. The
// interface lives with its consumers (Retriever, Writer); implementations
// sit in infrastructure.
type Repository interface {
	Save(ctx context.Context, m *Memory) error
	FindByID(ctx context.Context, id string) (*Memory, error)
	// FindByIDs returns the records that exist, skipping missing ids.
	FindByIDs(ctx context.Context, ids []string) ([]*Memory, error)
	// FindAll returns every record; archived ones only when includeArchived.
	FindAll(ctx context.Context, includeArchived bool) ([]*Memory, error)
	// TouchAccess stamps last_accessed and bumps access_count. Best effort.
	TouchAccess(ctx context.Context, ids []string, at time.Time) error
	// Delete permanently removes a record. Only the maintenance pass calls
	// this, after the archive TTL expires.
	Delete(ctx context.Context, id string) error
}
