package home

import (
	"context"

	"github.com/barnabee/barnabee/internal/domain/entity"
)

// Platform is the narrow interface to the smart-home system. The core only
// consumes these four operations; platform internals stay outside.
type Platform interface {
	ListEntities(ctx context.Context) ([]entity.HomeEntity, error)
	GetState(ctx context.Context, entityID string) (*entity.EntityState, error)
	CallService(ctx context.Context, call entity.ServiceCall) error
	// SubscribeStateChanges streams state updates until ctx is cancelled.
	SubscribeStateChanges(ctx context.Context) (<-chan entity.EntityState, error)
}
