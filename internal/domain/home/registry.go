package home

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"go.uber.org/zap"
)

// maxFuzzyDistance is the edit-distance bound for fuzzy name resolution.
const maxFuzzyDistance = 2

// Registry caches the platform's entity list and resolves utterance phrases
// to entities. The core never fabricates entity ids; everything returned
// here came from the platform.
type Registry struct {
	platform Platform
	ttl      time.Duration
	groups   map[string][]string // Named group -> entity ids, from config
	logger   *zap.Logger

	mu        sync.RWMutex
	entities  []entity.HomeEntity
	refreshed time.Time
}

// NewRegistry creates a registry with the given cache TTL.
func NewRegistry(platform Platform, ttl time.Duration, groups map[string][]string, logger *zap.Logger) *Registry {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Registry{
		platform: platform,
		ttl:      ttl,
		groups:   groups,
		logger:   logger.With(zap.String("component", "home-registry")),
	}
}

// Refresh forces a reload of the entity list from the platform.
func (r *Registry) Refresh(ctx context.Context) error {
	entities, err := r.platform.ListEntities(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.entities = entities
	r.refreshed = time.Now()
	r.mu.Unlock()
	r.logger.Debug("Entity registry refreshed", zap.Int("entities", len(entities)))
	return nil
}

// snapshot returns the cached entities, refreshing when stale. A failed
// refresh falls back to the stale cache.
func (r *Registry) snapshot(ctx context.Context) []entity.HomeEntity {
	r.mu.RLock()
	stale := time.Since(r.refreshed) > r.ttl
	entities := r.entities
	r.mu.RUnlock()

	if stale || entities == nil {
		if err := r.Refresh(ctx); err != nil {
			r.logger.Warn("Registry refresh failed, using stale cache", zap.Error(err))
		}
		r.mu.RLock()
		entities = r.entities
		r.mu.RUnlock()
	}
	return entities
}

// Known reports whether the cached snapshot contains entityID. It never
// triggers a refresh; callers use a miss as the signal to refresh.
func (r *Registry) Known(entityID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entities {
		if e.EntityID == entityID {
			return true
		}
	}
	return false
}

// Resolve maps a target phrase to entities. Resolution order: named group,
// exact name, fuzzy name (edit distance <= 2), area expansion, floor
// expansion. domainHint narrows expansion to one platform domain
// ("lights in kitchen" -> lights only).
func (r *Registry) Resolve(ctx context.Context, phrase, domainHint string) []entity.HomeEntity {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return nil
	}
	entities := r.snapshot(ctx)

	// Named groups from config expand to their member ids.
	if ids, ok := r.groups[phrase]; ok {
		var out []entity.HomeEntity
		for _, id := range ids {
			for _, e := range entities {
				if e.EntityID == id {
					out = append(out, e)
					break
				}
			}
		}
		if len(out) > 0 {
			return out
		}
	}

	// Exact display-name match.
	for _, e := range entities {
		if strings.ToLower(e.Name) == phrase {
			return []entity.HomeEntity{e}
		}
	}

	// Fuzzy display-name match.
	best := -1
	bestDist := maxFuzzyDistance + 1
	for i, e := range entities {
		d := editDistance(strings.ToLower(e.Name), phrase)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best >= 0 && bestDist <= maxFuzzyDistance {
		return []entity.HomeEntity{entities[best]}
	}

	// Area and floor expansion.
	if out := r.expand(entities, phrase, domainHint); len(out) > 0 {
		return out
	}
	return nil
}

// ByDomain returns every entity in the platform domain. Generic nouns
// ("the thermostat", "the heating") resolve this way.
func (r *Registry) ByDomain(ctx context.Context, domain string) []entity.HomeEntity {
	var out []entity.HomeEntity
	for _, e := range r.snapshot(ctx) {
		if e.Domain == domain {
			out = append(out, e)
		}
	}
	return out
}

// ByArea returns every entity in the area, optionally narrowed by domain.
func (r *Registry) ByArea(ctx context.Context, area, domainHint string) []entity.HomeEntity {
	return r.expand(r.snapshot(ctx), strings.ToLower(area), domainHint)
}

func (r *Registry) expand(entities []entity.HomeEntity, place, domainHint string) []entity.HomeEntity {
	var out []entity.HomeEntity
	for _, e := range entities {
		if !strings.EqualFold(e.Area, place) && !strings.EqualFold(e.Floor, place) {
			continue
		}
		if domainHint != "" && e.Domain != domainHint {
			continue
		}
		out = append(out, e)
	}
	return out
}

// editDistance computes Levenshtein distance with two rolling rows. Kept
// in-package: the inputs are short device names, nothing here needs a
// library.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
