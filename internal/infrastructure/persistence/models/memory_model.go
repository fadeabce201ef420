package models

import (
	"encoding/json"
	"time"

	"github.com/barnabee/barnabee/internal/domain/memory"
)

// MemoryModel is the GORM mapping for one memory record. Embeddings live
// in the sidecar table, never inline.
type MemoryModel struct {
	ID             string    `gorm:"primaryKey;size:64"`
	Content        string    `gorm:"type:text;not null"`
	Type           string    `gorm:"size:32;index"`
	BaseImportance float64   `gorm:"not null"`
	Emotion        string    `gorm:"size:32"`
	Participants   string    `gorm:"type:text"` // JSON array
	Tags           string    `gorm:"type:text"` // JSON array
	CreatedAt      time.Time `gorm:"index"`
	LastAccessed   time.Time
	AccessCount    int
	Archived       bool `gorm:"index"`
	SchemaVersion  int
}

// TableName keeps the table name stable across GORM naming changes.
func (MemoryModel) TableName() string { return "memories" }

// EmbeddingModel is the sidecar row holding one memory's vector.
type EmbeddingModel struct {
	MemoryID  string `gorm:"primaryKey;size:64"`
	Vector    []byte `gorm:"type:blob"` // JSON-encoded []float32
	Dimension int
}

// TableName keeps the table name stable across GORM naming changes.
func (EmbeddingModel) TableName() string { return "memory_embeddings" }

// FromMemory converts a domain memory into its row form.
func FromMemory(m *memory.Memory) (*MemoryModel, error) {
	participants, err := json.Marshal(m.Participants)
	if err != nil {
		return nil, err
	}
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return nil, err
	}
	return &MemoryModel{
		ID:             m.ID,
		Content:        m.Content,
		Type:           string(m.Type),
		BaseImportance: m.BaseImportance,
		Emotion:        m.Emotion,
		Participants:   string(participants),
		Tags:           string(tags),
		CreatedAt:      m.CreatedAt,
		LastAccessed:   m.LastAccessed,
		AccessCount:    m.AccessCount,
		Archived:       m.Archived,
		SchemaVersion:  m.SchemaVersion,
	}, nil
}

// ToMemory converts a row back into the domain form. The embedding stays
// empty; callers needing it read the sidecar.
func (mm *MemoryModel) ToMemory() (*memory.Memory, error) {
	var participants, tags []string
	if mm.Participants != "" {
		if err := json.Unmarshal([]byte(mm.Participants), &participants); err != nil {
			return nil, err
		}
	}
	if mm.Tags != "" {
		if err := json.Unmarshal([]byte(mm.Tags), &tags); err != nil {
			return nil, err
		}
	}
	return &memory.Memory{
		ID:             mm.ID,
		Content:        mm.Content,
		Type:           memory.MemoryType(mm.Type),
		BaseImportance: mm.BaseImportance,
		Emotion:        mm.Emotion,
		Participants:   participants,
		Tags:           tags,
		CreatedAt:      mm.CreatedAt,
		LastAccessed:   mm.LastAccessed,
		AccessCount:    mm.AccessCount,
		Archived:       mm.Archived,
		SchemaVersion:  mm.SchemaVersion,
	}, nil
}
