package persistence

import (
	"context"
	"fmt"
	"testing"

	"github.com/barnabee/barnabee/internal/domain/entity"
	apperrors "github.com/barnabee/barnabee/pkg/errors"
)

func auditEntry(id, conversationID string) *entity.AuditEntry {
	return &entity.AuditEntry{
		ID:             id,
		RequestID:      "req-" + id,
		ConversationID: conversationID,
		Utterance:      "test utterance",
		ResponseText:   "test response",
	}
}

func TestAuditAppendPreservesOrder(t *testing.T) {
	r := NewInMemoryAuditRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := r.Append(ctx, auditEntry(fmt.Sprintf("e%d", i), "conv-1")); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := r.FindByConversation(ctx, "conv-1", 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("entries = %d", len(got))
	}
	for i, e := range got {
		if e.ID != fmt.Sprintf("e%d", i) {
			t.Errorf("entry %d = %s, order lost", i, e.ID)
		}
	}
}

func TestAuditFindScopedToConversation(t *testing.T) {
	r := NewInMemoryAuditRepository()
	ctx := context.Background()

	r.Append(ctx, auditEntry("a", "conv-1"))
	r.Append(ctx, auditEntry("b", "conv-2"))

	got, _ := r.FindByConversation(ctx, "conv-1", 10)
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("got = %+v", got)
	}
}

func TestAuditLimitKeepsNewest(t *testing.T) {
	r := NewInMemoryAuditRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r.Append(ctx, auditEntry(fmt.Sprintf("e%d", i), "conv-1"))
	}

	got, _ := r.FindByConversation(ctx, "conv-1", 2)
	if len(got) != 2 || got[0].ID != "e3" || got[1].ID != "e4" {
		t.Errorf("got = %+v, want the two newest", got)
	}
}

func TestAuditSoftDelete(t *testing.T) {
	r := NewInMemoryAuditRepository()
	ctx := context.Background()

	r.Append(ctx, auditEntry("a", "conv-1"))
	if err := r.SoftDelete(ctx, "a", "retention request"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	got, _ := r.FindByConversation(ctx, "conv-1", 10)
	if len(got) != 0 {
		t.Errorf("soft-deleted entry still visible: %+v", got)
	}

	// The record survives for retention, flagged rather than erased.
	all := r.All()
	if len(all) != 1 || !all[0].Deleted || all[0].Reason != "retention request" {
		t.Errorf("all = %+v", all)
	}

	if err := r.SoftDelete(ctx, "missing", "x"); !apperrors.IsNotFound(err) {
		t.Errorf("delete missing = %v, want not found", err)
	}
}

func TestAuditCopiesOnReturn(t *testing.T) {
	r := NewInMemoryAuditRepository()
	ctx := context.Background()

	r.Append(ctx, auditEntry("a", "conv-1"))
	got, _ := r.FindByConversation(ctx, "conv-1", 10)
	got[0].ResponseText = "mutated"

	again, _ := r.FindByConversation(ctx, "conv-1", 10)
	if again[0].ResponseText != "test response" {
		t.Error("caller mutation leaked into the store")
	}
}
