package handler

import (
	"sort"
	"sync/atomic"

	"github.com/barnabee/barnabee/internal/domain/entity"
)

// OverrideScope orders rules by specificity: user beats room beats time.
type OverrideScope int

const (
	ScopeTime OverrideScope = iota
	ScopeRoom
	ScopeUser
)

// OverrideRule mutates response behavior when its scope matches the
// request. Zero-valued effect fields leave the setting untouched.
type OverrideRule struct {
	ID       string        `yaml:"id"`
	Scope    OverrideScope `yaml:"-"`
	Priority int           `yaml:"priority"`

	// Match criteria, one per scope.
	Speaker   string `yaml:"speaker,omitempty"`
	Room      string `yaml:"room,omitempty"`
	FromHour  int    `yaml:"from_hour,omitempty"`
	UntilHour int    `yaml:"until_hour,omitempty"`

	// Effects.
	Volume           string   `yaml:"volume,omitempty"` // "quiet", "normal", "loud"
	BlockedDomains   []string `yaml:"blocked_domains,omitempty"`
	ConfirmThreshold float64  `yaml:"confirm_threshold,omitempty"`
}

func (r OverrideRule) matches(req *entity.Request) bool {
	switch r.Scope {
	case ScopeUser:
		return r.Speaker != "" && r.Speaker == req.Speaker
	case ScopeRoom:
		return r.Room != "" && r.Room == req.Room
	case ScopeTime:
		h := req.Timestamp.Hour()
		if r.FromHour <= r.UntilHour {
			return h >= r.FromHour && h < r.UntilHour
		}
		// Overnight window, e.g. 22 to 7.
		return h >= r.FromHour || h < r.UntilHour
	}
	return false
}

// ResolvedOverrides is the merged effect of every matching rule.
type ResolvedOverrides struct {
	Volume           string
	BlockedDomains   []string
	ConfirmThreshold float64
}

// DomainBlocked reports whether a platform domain is blocked for this
// request.
func (o ResolvedOverrides) DomainBlocked(domain string) bool {
	for _, d := range o.BlockedDomains {
		if d == domain {
			return true
		}
	}
	return false
}

// OverrideResolver matches rules against requests. The rule set is
// replaced atomically on reload.
type OverrideResolver struct {
	rules atomic.Pointer[[]OverrideRule]
}

// NewOverrideResolver creates a resolver over the initial rule set.
func NewOverrideResolver(rules []OverrideRule) *OverrideResolver {
	r := &OverrideResolver{}
	r.Swap(rules)
	return r
}

// Swap replaces the rule set.
func (r *OverrideResolver) Swap(rules []OverrideRule) {
	sorted := make([]OverrideRule, len(rules))
	copy(sorted, rules)
	// Specificity first, then priority; stable so declaration order breaks
	// remaining ties deterministically.
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Scope != sorted[j].Scope {
			return sorted[i].Scope > sorted[j].Scope
		}
		return sorted[i].Priority > sorted[j].Priority
	})
	r.rules.Store(&sorted)
}

// Resolve walks the matching rules in (specificity, priority) order; the
// first rule to set each effect field wins.
func (r *OverrideResolver) Resolve(req *entity.Request) ResolvedOverrides {
	var out ResolvedOverrides
	matchedScopes := make(map[OverrideScope]bool, 3)
	for _, rule := range *r.rules.Load() {
		if matchedScopes[rule.Scope] || !rule.matches(req) {
			continue
		}
		matchedScopes[rule.Scope] = true
		if out.Volume == "" && rule.Volume != "" {
			out.Volume = rule.Volume
		}
		if out.BlockedDomains == nil && len(rule.BlockedDomains) > 0 {
			out.BlockedDomains = rule.BlockedDomains
		}
		if out.ConfirmThreshold == 0 && rule.ConfirmThreshold > 0 {
			out.ConfirmThreshold = rule.ConfirmThreshold
		}
	}
	return out
}
