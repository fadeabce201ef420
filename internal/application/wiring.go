package application

import (
	"context"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/internal/domain/handler"
	"github.com/barnabee/barnabee/internal/domain/home"
	"github.com/barnabee/barnabee/internal/infrastructure/config"
	apperrors "github.com/barnabee/barnabee/pkg/errors"
)

// offlinePlatform backs the REPL when no smart-home platform is
// configured. Device commands resolve nothing and state reads miss.
type offlinePlatform struct{}

var _ home.Platform = offlinePlatform{}

func (offlinePlatform) ListEntities(context.Context) ([]entity.HomeEntity, error) {
	return nil, nil
}

func (offlinePlatform) GetState(_ context.Context, entityID string) (*entity.EntityState, error) {
	return nil, apperrors.NewNotFound("no platform configured: " + entityID)
}

func (offlinePlatform) CallService(_ context.Context, call entity.ServiceCall) error {
	return apperrors.NewNotFound("no platform configured: " + call.Target)
}

func (offlinePlatform) SubscribeStateChanges(context.Context) (<-chan entity.EntityState, error) {
	ch := make(chan entity.EntityState)
	close(ch)
	return ch, nil
}

// entityIntent maps a routing config key to an intent.
func entityIntent(s string) entity.Intent {
	return entity.Intent(s)
}

// overrideRules converts configured override rules into domain rules,
// dropping entries with an unrecognized scope.
func overrideRules(configs []config.OverrideConfig) []handler.OverrideRule {
	rules := make([]handler.OverrideRule, 0, len(configs))
	for _, c := range configs {
		var scope handler.OverrideScope
		switch c.Scope {
		case "user":
			scope = handler.ScopeUser
		case "room":
			scope = handler.ScopeRoom
		case "time":
			scope = handler.ScopeTime
		default:
			continue
		}
		rules = append(rules, handler.OverrideRule{
			ID:               c.ID,
			Scope:            scope,
			Priority:         c.Priority,
			Speaker:          c.Speaker,
			Room:             c.Room,
			FromHour:         c.FromHour,
			UntilHour:        c.UntilHour,
			Volume:           c.Volume,
			BlockedDomains:   c.BlockedDomains,
			ConfirmThreshold: c.ConfirmThreshold,
		})
	}
	return rules
}
