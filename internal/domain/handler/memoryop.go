package handler

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/internal/domain/memory"
	"go.uber.org/zap"
)

var (
	storeRe  = regexp.MustCompile(`^remember (?:that )?(.+)$`)
	recallRe = regexp.MustCompile(`^what(?:'s| is) (?:my|our) (.+)$`)
	forgetRe = regexp.MustCompile(`^forget (?:about |that )?(.+)$`)
	myRe     = regexp.MustCompile(`^(?:my|our) `)
)

// MemoryOpHandler services explicit remember, recall and forget commands.
type MemoryOpHandler struct {
	writer    *memory.Writer
	retriever *memory.Retriever
	logger    *zap.Logger
}

// NewMemoryOpHandler creates the handler.
func NewMemoryOpHandler(writer *memory.Writer, retriever *memory.Retriever, logger *zap.Logger) *MemoryOpHandler {
	return &MemoryOpHandler{
		writer:    writer,
		retriever: retriever,
		logger:    logger.With(zap.String("component", "memory-handler")),
	}
}

func (h *MemoryOpHandler) Name() string { return "memory" }

func (h *MemoryOpHandler) Handle(ctx context.Context, inv *Invocation) entity.HandlerResult {
	text := inv.Request.Text()

	switch inv.Classification.SubCategory {
	case "store":
		return h.store(ctx, inv, text)
	case "recall":
		return h.recall(ctx, inv, text)
	case "forget":
		return h.forget(ctx, inv, text)
	}

	// Sub-category missing (heuristic classification): infer from the verb.
	switch {
	case storeRe.MatchString(text):
		return h.store(ctx, inv, text)
	case forgetRe.MatchString(text):
		return h.forget(ctx, inv, text)
	default:
		return h.recall(ctx, inv, text)
	}
}

func (h *MemoryOpHandler) store(ctx context.Context, inv *Invocation, text string) entity.HandlerResult {
	m := storeRe.FindStringSubmatch(text)
	if m == nil {
		return entity.HandlerResult{
			Text:   "What would you like me to remember?",
			Status: entity.HandlerPartial,
		}
	}
	// "my favorite color is blue" stores as "favorite color is blue".
	content := myRe.ReplaceAllString(m[1], "")

	mem := memory.New(content, memory.TypePreference, 0.7, []string{inv.Request.Speaker}, []string{"explicit"})
	if err := h.writer.Create(ctx, mem); err != nil {
		h.logger.Error("Memory create failed", zap.Error(err))
		return entity.HandlerResult{
			Text:        "I couldn't save that just now.",
			Status:      entity.HandlerFailed,
			Diagnostics: map[string]string{"error": err.Error()},
		}
	}
	return ok200(fmt.Sprintf("Got it, I'll remember that %s.", m[1]))
}

func (h *MemoryOpHandler) recall(ctx context.Context, inv *Invocation, text string) entity.HandlerResult {
	key := text
	if m := recallRe.FindStringSubmatch(text); m != nil {
		key = m[1]
	}

	hits, err := h.retriever.Retrieve(ctx, key, 3, memory.Filter{Speaker: inv.Request.Speaker})
	if err != nil {
		h.logger.Error("Memory retrieval failed", zap.Error(err))
		return entity.HandlerResult{
			Text:        "I couldn't check my memory just now.",
			Status:      entity.HandlerFailed,
			Diagnostics: map[string]string{"error": err.Error()},
		}
	}
	if len(hits) == 0 {
		return ok200("I don't have anything stored about that.")
	}
	return ok200(fmt.Sprintf("You told me your %s.", hits[0].Memory.Content))
}

func (h *MemoryOpHandler) forget(ctx context.Context, inv *Invocation, text string) entity.HandlerResult {
	m := forgetRe.FindStringSubmatch(text)
	if m == nil {
		return entity.HandlerResult{
			Text:   "What should I forget?",
			Status: entity.HandlerPartial,
		}
	}
	key := myRe.ReplaceAllString(m[1], "")

	hits, err := h.retriever.Retrieve(ctx, key, 5, memory.Filter{Speaker: inv.Request.Speaker})
	if err != nil {
		h.logger.Error("Memory retrieval for forget failed", zap.Error(err))
		return entity.HandlerResult{
			Text:        "I couldn't check my memory just now.",
			Status:      entity.HandlerFailed,
			Diagnostics: map[string]string{"error": err.Error()},
		}
	}

	deleted := 0
	for _, hit := range hits {
		if !strings.Contains(strings.ToLower(hit.Memory.Content), strings.ToLower(firstWords(key, 3))) {
			continue
		}
		if err := h.writer.SoftDelete(ctx, hit.Memory.ID, "speaker asked to forget"); err != nil {
			h.logger.Warn("Soft delete failed", zap.String("id", hit.Memory.ID), zap.Error(err))
			continue
		}
		deleted++
	}
	switch deleted {
	case 0:
		return ok200("I didn't have anything stored about that.")
	case 1:
		return ok200("Forgotten.")
	default:
		return ok200(fmt.Sprintf("Forgotten, all %d of them.", deleted))
	}
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
