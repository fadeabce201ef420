package entity

import "strings"

// HomeEntity is a resolved reference to an addressable object on the
// smart-home platform. The core never fabricates these; they come from the
// registry cache and are matched back to utterances.
type HomeEntity struct {
	EntityID string `json:"entity_id"` // e.g. "light.kitchen_main"
	Name     string `json:"name"`      // Display name, e.g. "Kitchen Light"
	Area     string `json:"area,omitempty"`
	Floor    string `json:"floor,omitempty"`
	Domain   string `json:"domain"` // light, lock, climate, cover, media_player, timer...
}

// DomainOf extracts the platform domain from an entity id
// ("light.kitchen_main" → "light").
func DomainOf(entityID string) string {
	if i := strings.IndexByte(entityID, '.'); i > 0 {
		return entityID[:i]
	}
	return ""
}

// EntityState is a point-in-time snapshot of one entity, sufficient to
// invert an action against it.
type EntityState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"` // "on", "off", "open", "72"...
	Attributes map[string]any `json:"attributes,omitempty"`
}

// ServiceCall is one operation against the platform.
type ServiceCall struct {
	Domain  string         `json:"domain"`
	Service string         `json:"service"`
	Target  string         `json:"target"` // entity id
	Data    map[string]any `json:"data,omitempty"`
}
