package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/barnabee/barnabee/internal/domain/conversation"
	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/internal/domain/handler"
	"github.com/barnabee/barnabee/internal/domain/home"
	"github.com/barnabee/barnabee/internal/domain/memory"
	"github.com/barnabee/barnabee/internal/domain/nlu"
	"github.com/barnabee/barnabee/internal/domain/service"
	"github.com/barnabee/barnabee/internal/infrastructure/persistence"
	apperrors "github.com/barnabee/barnabee/pkg/errors"
	"go.uber.org/zap"
)

// scriptedLLM returns a fixed reply.
type scriptedLLM struct {
	reply string
}

func (s *scriptedLLM) Complete(context.Context, *service.CompletionRequest) (*service.CompletionResponse, error) {
	return &service.CompletionResponse{Content: s.reply, ModelUsed: "test"}, nil
}

// blockingLLM parks until released, ignoring the context. It simulates a
// handler that overruns its stage deadline.
type blockingLLM struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingLLM() *blockingLLM {
	return &blockingLLM{
		started: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (b *blockingLLM) Complete(context.Context, *service.CompletionRequest) (*service.CompletionResponse, error) {
	b.started <- struct{}{}
	<-b.release
	return nil, errors.New("aborted")
}

// pipelinePlatform is a one-light household that records service calls.
type pipelinePlatform struct {
	mu    sync.Mutex
	calls []entity.ServiceCall
}

func (p *pipelinePlatform) ListEntities(context.Context) ([]entity.HomeEntity, error) {
	return []entity.HomeEntity{
		{EntityID: "light.kitchen_main", Name: "Kitchen Light", Area: "kitchen", Floor: "ground", Domain: "light"},
	}, nil
}

func (p *pipelinePlatform) GetState(_ context.Context, entityID string) (*entity.EntityState, error) {
	return &entity.EntityState{EntityID: entityID, State: "off"}, nil
}

func (p *pipelinePlatform) CallService(_ context.Context, call entity.ServiceCall) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	return nil
}

func (p *pipelinePlatform) SubscribeStateChanges(context.Context) (<-chan entity.EntityState, error) {
	ch := make(chan entity.EntityState)
	close(ch)
	return ch, nil
}

func (p *pipelinePlatform) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fixture struct {
	uc       *ProcessRequestUseCase
	audit    *persistence.InMemoryAuditRepository
	memRepo  *persistence.InMemoryMemoryRepository
	platform *pipelinePlatform
}

func newFixture(t *testing.T, llm service.LLMClient, safety *nlu.SafetyMonitor, cfg Config) *fixture {
	t.Helper()
	nop := zap.NewNop()

	seed, errs := nlu.NewPatternSet(nlu.SeedPatterns())
	if len(errs) > 0 {
		t.Fatalf("seed patterns: %v", errs)
	}
	classifier := nlu.NewClassifier(
		nlu.NewPatternMatcher(seed, nop),
		nlu.NewHeuristicClassifier(),
		nil,
		nlu.ClassifierConfig{},
		nop,
	)

	memRepo := persistence.NewInMemoryMemoryRepository()
	index := memory.NewInMemoryVectorIndex(64)
	embedder := memory.NewHashEmbedder(64)
	retriever := memory.NewRetriever(memRepo, index, embedder, memory.DefaultScoringConfig(), nop)
	writer := memory.NewWriter(memRepo, index, embedder, nil, memory.DefaultWriterConfig(), nop)

	platform := &pipelinePlatform{}
	registry := home.NewRegistry(platform, 5*time.Minute, nil, nop)
	undo := home.NewUndoStore(5)
	timers := home.NewTimerPool([]string{"timer.slot_1"})

	router := handler.NewRouter(handler.DefaultRoutingTable(),
		handler.NewInstantHandler(),
		handler.NewActionHandler(registry, platform, undo, timers, nop),
		handler.NewConversationHandler(llm, handler.ConversationConfig{Model: "test"}, nop),
		handler.NewMemoryOpHandler(writer, retriever, nop),
	)

	audit := persistence.NewInMemoryAuditRepository()
	uc := NewProcessRequestUseCase(
		classifier, safety, retriever, writer, router,
		handler.NewOverrideResolver(nil),
		conversation.NewStore(conversation.DefaultConfig()),
		nil, audit, nil, cfg, nop,
	)
	return &fixture{uc: uc, audit: audit, memRepo: memRepo, platform: platform}
}

func TestExecuteInstantFlow(t *testing.T) {
	f := newFixture(t, &scriptedLLM{reply: "unused"}, nil, Config{})
	ctx := context.Background()

	resp, err := f.uc.Execute(ctx, entity.NewRequest("what time is it?", "sam", "kitchen", "conv-1"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Intent != entity.IntentInstant || resp.Handler != "instant" {
		t.Errorf("routed to %s/%s", resp.Intent, resp.Handler)
	}
	if !strings.HasPrefix(resp.Text, "It's ") {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.TraceID == "" {
		t.Error("missing trace id")
	}

	// The audit entry is committed before Execute returns.
	entries, err := f.audit.FindByConversation(ctx, "conv-1", 10)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(entries) != 1 || entries[0].Handler != "instant" || entries[0].AlertFlag {
		t.Errorf("audit = %+v", entries)
	}
}

func TestExecuteActionFlow(t *testing.T) {
	f := newFixture(t, &scriptedLLM{reply: "unused"}, nil, Config{})

	resp, err := f.uc.Execute(context.Background(), entity.NewRequest("turn on the kitchen light", "sam", "kitchen", "conv-1"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Handler != "action" || resp.Text != "Done, Kitchen Light." {
		t.Errorf("resp = %+v", resp)
	}
	if f.platform.callCount() != 1 {
		t.Errorf("platform calls = %d", f.platform.callCount())
	}
}

func TestExecuteMemoryStoreAndRecall(t *testing.T) {
	f := newFixture(t, &scriptedLLM{reply: "unused"}, nil, Config{})
	ctx := context.Background()

	resp, err := f.uc.Execute(ctx, entity.NewRequest("remember that my favorite color is blue", "sam", "kitchen", "conv-1"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Handler != "memory" {
		t.Fatalf("handler = %s: %s", resp.Handler, resp.Text)
	}
	all, _ := f.memRepo.FindAll(ctx, false)
	if len(all) != 1 {
		t.Fatalf("stored %d memories", len(all))
	}

	resp, err = f.uc.Execute(ctx, entity.NewRequest("what is my favorite color?", "sam", "kitchen", "conv-1"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(resp.Text, "favorite color is blue") {
		t.Errorf("recall = %q", resp.Text)
	}
}

func TestExecuteMalformedInput(t *testing.T) {
	f := newFixture(t, &scriptedLLM{reply: "unused"}, nil, Config{MaxUtteranceChars: 32})
	ctx := context.Background()

	tests := []struct {
		name      string
		utterance string
	}{
		{"empty", "   "},
		{"oversized", strings.Repeat("a", 64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.uc.Execute(ctx, entity.NewRequest(tt.utterance, "sam", "kitchen", "conv-bad"))
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if resp.Text != cannedClarification {
				t.Errorf("text = %q", resp.Text)
			}
		})
	}

	// Rejections are audited too.
	entries, _ := f.audit.FindByConversation(ctx, "conv-bad", 10)
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Reason != "input malformed" {
			t.Errorf("reason = %q", e.Reason)
		}
	}
}

func TestExecuteCapacityRejection(t *testing.T) {
	llm := newBlockingLLM()
	f := newFixture(t, llm, nil, Config{MaxInFlight: 1})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.uc.Execute(ctx, entity.NewRequest("i had a rough day at work", "sam", "kitchen", "conv-1"))
		done <- err
	}()
	<-llm.started

	_, err := f.uc.Execute(ctx, entity.NewRequest("what time is it?", "sam", "kitchen", "conv-2"))
	if !apperrors.IsCapacity(err) {
		t.Errorf("second request error = %v, want capacity", err)
	}

	close(llm.release)
	if err := <-done; err != nil {
		t.Errorf("first request: %v", err)
	}
}

func TestExecuteHandlerTimeout(t *testing.T) {
	llm := newBlockingLLM()
	f := newFixture(t, llm, nil, Config{
		Deadlines: Deadlines{Conversation: 20 * time.Millisecond},
	})
	defer close(llm.release)

	resp, err := f.uc.Execute(context.Background(), entity.NewRequest("i had a rough day at work", "sam", "kitchen", "conv-1"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Text != cannedTimeout {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Handler != "conversation" {
		t.Errorf("handler = %q", resp.Handler)
	}
}

func TestExecuteSafetyAlertFlagsAudit(t *testing.T) {
	safety := nlu.NewSafetyMonitor(
		[]string{"kiddo"},
		nlu.DefaultSafetyExpressions(),
		nil, "guardian", zap.NewNop(),
	)
	f := newFixture(t, &scriptedLLM{reply: "I'm here with you."}, safety, Config{})
	ctx := context.Background()

	resp, err := f.uc.Execute(ctx, entity.NewRequest("I'm scared, don't tell mom", "kiddo", "bedroom", "conv-1"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	// The alert never changes the spoken response.
	if resp.Text != "I'm here with you." {
		t.Errorf("text = %q", resp.Text)
	}

	entries, _ := f.audit.FindByConversation(ctx, "conv-1", 10)
	if len(entries) != 1 || !entries[0].AlertFlag {
		t.Errorf("audit = %+v", entries)
	}
}

func TestExecuteConversationWriteBack(t *testing.T) {
	f := newFixture(t, &scriptedLLM{reply: "That sounds tough."}, nil, Config{})
	ctx := context.Background()

	resp, err := f.uc.Execute(ctx, entity.NewRequest("i had a rough day at work", "sam", "kitchen", "conv-1"))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if resp.Handler != "conversation" {
		t.Fatalf("handler = %s", resp.Handler)
	}

	// Write-back is asynchronous; poll for the observation memory.
	deadline := time.Now().Add(2 * time.Second)
	for {
		all, _ := f.memRepo.FindAll(ctx, false)
		if len(all) == 1 {
			if all[0].Type != memory.TypeObservation {
				t.Errorf("write-back type = %s", all[0].Type)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("observation memory never written")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
