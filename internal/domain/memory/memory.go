package memory

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is stamped on every persisted record. Records must stay
// readable by the next minor version.
const SchemaVersion = 1

// MinimumImportanceFloor is the hard lower bound on effective importance.
const MinimumImportanceFloor = 0.05

// MemoryType determines decay speed and retention weight.
type MemoryType string

const (
	TypeSignificant MemoryType = "significant" // Life events, lasting facts
	TypePreference  MemoryType = "preference"  // Likes, dislikes, settings
	TypeRoutine     MemoryType = "routine"     // Recurring behavior
	TypeObservation MemoryType = "observation" // Incidental context
	TypeTransient   MemoryType = "transient"   // Short-lived working notes
)

// typeWeights scale base importance per type.
var typeWeights = map[MemoryType]float64{
	TypeSignificant: 1.0,
	TypePreference:  0.9,
	TypeRoutine:     0.8,
	TypeObservation: 0.6,
	TypeTransient:   0.3,
}

// retentionMultipliers stretch or shrink the half-life per type.
var retentionMultipliers = map[MemoryType]float64{
	TypeSignificant: 3.0,
	TypePreference:  2.0,
	TypeRoutine:     1.5,
	TypeObservation: 1.0,
	TypeTransient:   0.5,
}

// Memory is one durable long-term record. Mutated only through access
// stamping, reinforcement and the maintenance pass.
type Memory struct {
	ID             string     `json:"id"`
	Content        string     `json:"content"`
	Type           MemoryType `json:"type"`
	BaseImportance float64    `json:"base_importance"` // [0,1]
	Emotion        string     `json:"emotion,omitempty"`
	Participants   []string   `json:"participants,omitempty"` // Speaker ids
	Tags           []string   `json:"tags,omitempty"`
	Embedding      []float32  `json:"-"` // Stored in the sidecar, not the record
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessed   time.Time  `json:"last_accessed"`
	AccessCount    int        `json:"access_count"`
	Archived       bool       `json:"archived"`
	SchemaVersion  int        `json:"schema_version"`
}

// New creates a memory with a fresh id and timestamps.
func New(content string, memType MemoryType, importance float64, participants, tags []string) *Memory {
	now := time.Now()
	return &Memory{
		ID:             uuid.NewString(),
		Content:        content,
		Type:           memType,
		BaseImportance: clamp(importance, 0, 1),
		Participants:   participants,
		Tags:           tags,
		CreatedAt:      now,
		LastAccessed:   now,
		SchemaVersion:  SchemaVersion,
	}
}

// TypeWeight returns the importance weight for the memory's type.
func (m *Memory) TypeWeight() float64 {
	if w, ok := typeWeights[m.Type]; ok {
		return w
	}
	return typeWeights[TypeObservation]
}

// DecayFactor computes 0.5^(days_since_access / (halfLife * retention)).
// Zero elapsed time yields exactly 1.0.
func (m *Memory) DecayFactor(now time.Time, baseHalfLifeDays float64) float64 {
	mult, ok := retentionMultipliers[m.Type]
	if !ok {
		mult = 1.0
	}
	days := now.Sub(m.LastAccessed).Hours() / 24
	if days <= 0 {
		return 1.0
	}
	return math.Pow(0.5, days/(baseHalfLifeDays*mult))
}

// AccessBonus computes min(1.0, 0.5 + 0.1*ln(1+access_count)).
func (m *Memory) AccessBonus() float64 {
	return math.Min(1.0, 0.5+0.1*math.Log(1+float64(m.AccessCount)))
}

// EffectiveImportance is the decay-and-access-adjusted retention score,
// clamped to [MinimumImportanceFloor, 1].
func (m *Memory) EffectiveImportance(now time.Time, baseHalfLifeDays float64) float64 {
	raw := m.BaseImportance * m.TypeWeight() * m.DecayFactor(now, baseHalfLifeDays) * m.AccessBonus()
	return clamp(raw, MinimumImportanceFloor, 1.0)
}

// Touch stamps an access, feeding the access bonus.
func (m *Memory) Touch(now time.Time) {
	m.LastAccessed = now
	m.AccessCount++
}

// OwnedBy reports whether speaker is among the participants.
func (m *Memory) OwnedBy(speaker string) bool {
	for _, p := range m.Participants {
		if p == speaker {
			return true
		}
	}
	return false
}

// HasTag reports whether the memory carries the given tag.
func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
