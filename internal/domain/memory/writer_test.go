package memory

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestWriterCreateIndexes(t *testing.T) {
	repo := newStubRepo()
	index := NewInMemoryVectorIndex(64)
	writer := NewWriter(repo, index, NewHashEmbedder(64), nil, DefaultWriterConfig(), zap.NewNop())

	m := New("sam's birthday is in june", TypeSignificant, 0.9, nil, nil)
	if err := writer.Create(context.Background(), m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if index.Len() != 1 {
		t.Errorf("index len = %d, want 1", index.Len())
	}
	if len(m.Embedding) != 64 {
		t.Errorf("embedding dimension = %d, want 64", len(m.Embedding))
	}
}

func TestWriterReinforceSaturates(t *testing.T) {
	repo := newStubRepo()
	writer := NewWriter(repo, NewInMemoryVectorIndex(64), NewHashEmbedder(64), nil, DefaultWriterConfig(), zap.NewNop())
	ctx := context.Background()

	m := New("x", TypePreference, 0.95, nil, nil)
	if err := writer.Create(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := writer.Reinforce(ctx, m.ID); err != nil {
		t.Fatalf("reinforce: %v", err)
	}
	if err := writer.Reinforce(ctx, m.ID); err != nil {
		t.Fatalf("reinforce: %v", err)
	}

	stored, _ := repo.FindByID(ctx, m.ID)
	if stored.BaseImportance != 1.0 {
		t.Errorf("importance = %v, want saturated 1.0", stored.BaseImportance)
	}
	if stored.AccessCount != 2 {
		t.Errorf("access count = %d, want 2", stored.AccessCount)
	}
}

func TestWriterSoftDeleteIdempotent(t *testing.T) {
	repo := newStubRepo()
	index := NewInMemoryVectorIndex(64)
	writer := NewWriter(repo, index, NewHashEmbedder(64), nil, DefaultWriterConfig(), zap.NewNop())
	ctx := context.Background()

	m := New("x", TypeObservation, 0.4, nil, nil)
	if err := writer.Create(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := writer.SoftDelete(ctx, m.ID, "asked"); err != nil {
		t.Fatalf("first soft delete: %v", err)
	}
	if err := writer.SoftDelete(ctx, m.ID, "asked again"); err != nil {
		t.Fatalf("second soft delete must be a no-op: %v", err)
	}
	if index.Len() != 0 {
		t.Errorf("index len = %d, want 0 after archive", index.Len())
	}
}

func TestMaintenanceArchivesDecayed(t *testing.T) {
	repo := newStubRepo()
	index := NewInMemoryVectorIndex(64)
	writer := NewWriter(repo, index, NewHashEmbedder(64), nil, DefaultWriterConfig(), zap.NewNop())
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	stale := New("mentioned the weather", TypeTransient, 0.3, nil, nil)
	if err := writer.Create(ctx, stale); err != nil {
		t.Fatalf("create: %v", err)
	}
	stale.LastAccessed = base
	if err := repo.Save(ctx, stale); err != nil {
		t.Fatalf("save: %v", err)
	}

	fresh := New("sam is allergic to peanuts", TypeSignificant, 0.9, nil, nil)
	if err := writer.Create(ctx, fresh); err != nil {
		t.Fatalf("create: %v", err)
	}
	fresh.LastAccessed = base.AddDate(0, 0, 170)
	if err := repo.Save(ctx, fresh); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Six months on, the transient note has decayed below 0.10; the
	// significant memory has not.
	writer.SetClock(func() time.Time { return base.AddDate(0, 6, 0) })
	stats, err := writer.RunMaintenance(ctx)
	if err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if stats.Archived != 1 {
		t.Fatalf("archived = %d, want 1", stats.Archived)
	}

	got, _ := repo.FindByID(ctx, stale.ID)
	if !got.Archived {
		t.Error("stale memory not archived")
	}
	got, _ = repo.FindByID(ctx, fresh.ID)
	if got.Archived {
		t.Error("fresh significant memory wrongly archived")
	}
}

func TestMaintenancePurgesExpiredArchive(t *testing.T) {
	repo := newStubRepo()
	writer := NewWriter(repo, NewInMemoryVectorIndex(64), NewHashEmbedder(64), nil, DefaultWriterConfig(), zap.NewNop())
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := New("old archived note", TypeObservation, 0.3, nil, nil)
	if err := writer.Create(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}
	m.Archived = true
	m.LastAccessed = base
	if err := repo.Save(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}

	// 91 days after last access: past the 90-day archive TTL.
	writer.SetClock(func() time.Time { return base.AddDate(0, 0, 91) })
	stats, err := writer.RunMaintenance(ctx)
	if err != nil {
		t.Fatalf("maintenance: %v", err)
	}
	if stats.Purged != 1 {
		t.Fatalf("purged = %d, want 1", stats.Purged)
	}
	if _, err := repo.FindByID(ctx, m.ID); err == nil {
		t.Error("purged record still present")
	}
}
