package nlu

import (
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"go.uber.org/zap"
)

// PatternGroup is a priority bucket of patterns. Groups are evaluated in
// fixed priority order; within a group, declaration order decides.
type PatternGroup string

const (
	GroupEmergency PatternGroup = "emergency"
	GroupInstant   PatternGroup = "instant"
	GroupGesture   PatternGroup = "gesture"
	GroupAction    PatternGroup = "action"
	GroupMemory    PatternGroup = "memory"
	GroupQuery     PatternGroup = "query"
)

// groupOrder is the fixed evaluation order, highest priority first.
var groupOrder = []PatternGroup{
	GroupEmergency,
	GroupInstant,
	GroupGesture,
	GroupAction,
	GroupMemory,
	GroupQuery,
}

// requiredGroups must be non-empty for a pattern set to be accepted.
var requiredGroups = []PatternGroup{
	GroupEmergency,
	GroupInstant,
	GroupAction,
	GroupMemory,
	GroupQuery,
}

// groupIntent maps a priority group to the intent its matches produce.
var groupIntent = map[PatternGroup]entity.Intent{
	GroupEmergency: entity.IntentEmergency,
	GroupInstant:   entity.IntentInstant,
	GroupGesture:   entity.IntentGesture,
	GroupAction:    entity.IntentAction,
	GroupMemory:    entity.IntentMemory,
	GroupQuery:     entity.IntentQuery,
}

// Pattern is one compiled classification rule.
type Pattern struct {
	ID          string
	Regexp      *regexp.Regexp
	SubCategory string
	Confidence  float64
	Group       PatternGroup
	Enabled     bool
}

// PatternSet is an immutable, fully compiled set of patterns. It is built
// once by the loader and replaced atomically; a request sees either the old
// set or the new one, never a mix.
type PatternSet struct {
	groups map[PatternGroup][]*Pattern
	count  int
}

// NewPatternSet compiles specs into a set. Patterns that fail to compile are
// marked disabled and reported in warnings; compilation errors never become
// runtime failures.
func NewPatternSet(specs []PatternSpec) (*PatternSet, []string) {
	set := &PatternSet{groups: make(map[PatternGroup][]*Pattern)}
	var warnings []string

	for _, spec := range specs {
		p := &Pattern{
			ID:          spec.ID,
			SubCategory: spec.SubCategory,
			Confidence:  spec.Confidence,
			Group:       spec.Group,
			Enabled:     true,
		}
		if p.Confidence <= 0 || p.Confidence > 1 {
			p.Confidence = 0.9
		}
		re, err := regexp.Compile("(?i)" + spec.Regex)
		if err != nil {
			p.Enabled = false
			warnings = append(warnings, fmt.Sprintf("pattern %s: %v", spec.ID, err))
		} else {
			p.Regexp = re
		}
		set.groups[spec.Group] = append(set.groups[spec.Group], p)
		set.count++
	}

	return set, warnings
}

// Validate checks that every required group has at least one enabled pattern.
func (s *PatternSet) Validate() error {
	for _, g := range requiredGroups {
		enabled := 0
		for _, p := range s.groups[g] {
			if p.Enabled {
				enabled++
			}
		}
		if enabled == 0 {
			return fmt.Errorf("pattern group %q has no enabled patterns", g)
		}
	}
	return nil
}

// Len returns the total number of patterns, disabled included.
func (s *PatternSet) Len() int { return s.count }

// Match evaluates groups in priority order and returns the first hit.
func (s *PatternSet) Match(text string) (entity.Classification, bool) {
	for _, g := range groupOrder {
		for _, p := range s.groups[g] {
			if !p.Enabled {
				continue
			}
			if p.Regexp.MatchString(text) {
				return entity.Classification{
					Intent:      groupIntent[g],
					SubCategory: p.SubCategory,
					Confidence:  p.Confidence,
					Source:      entity.SourcePattern,
					PatternID:   p.ID,
				}, true
			}
		}
	}
	return entity.Classification{}, false
}

// PatternSpec is the declarative (pre-compilation) form of a pattern, as it
// appears in patterns.yaml.
type PatternSpec struct {
	ID          string       `yaml:"id"`
	Regex       string       `yaml:"regex"`
	SubCategory string       `yaml:"sub_category"`
	Confidence  float64      `yaml:"confidence"`
	Group       PatternGroup `yaml:"-"`
}

// PatternMatcher holds the active pattern set behind an atomic pointer.
// Readers take a snapshot for the duration of a request.
type PatternMatcher struct {
	set    atomic.Pointer[PatternSet]
	logger *zap.Logger
}

// NewPatternMatcher creates a matcher seeded with the given set.
func NewPatternMatcher(seed *PatternSet, logger *zap.Logger) *PatternMatcher {
	m := &PatternMatcher{logger: logger.With(zap.String("component", "pattern-matcher"))}
	m.set.Store(seed)
	return m
}

// Match classifies text against the current set.
func (m *PatternMatcher) Match(text string) (entity.Classification, bool) {
	return m.set.Load().Match(text)
}

// Swap validates and atomically installs a new set. On validation failure
// the old set is retained and the error returned.
func (m *PatternMatcher) Swap(next *PatternSet) error {
	if err := next.Validate(); err != nil {
		m.logger.Warn("Rejected invalid pattern set, keeping active set",
			zap.Error(err),
		)
		return err
	}
	m.set.Store(next)
	m.logger.Info("Pattern set swapped", zap.Int("patterns", next.Len()))
	return nil
}

// Active returns the current set (for introspection and tests).
func (m *PatternMatcher) Active() *PatternSet { return m.set.Load() }
