package handler

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/barnabee/barnabee/internal/domain/conversation"
	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/internal/domain/service"
	"go.uber.org/zap"
)

const defaultPersona = `You are Barnabee, a warm and concise household assistant.
You speak in short sentences suitable for reading aloud.
You never mention being an AI or a language model.`

const cannedConversationFailure = "Sorry, I'm having trouble thinking right now. Could you ask me again in a moment?"

var markupRe = regexp.MustCompile("[*_`#>\\[\\]|]")

// ConversationConfig holds the model-call tunables.
type ConversationConfig struct {
	Model        string
	Persona      string
	Deadline     time.Duration // Default 3s
	MaxResponse  int           // Character cap on spoken output (default 600)
	MemoryBudget int           // Max retrieved memories in the prompt (default 5)
	WindowBudget int           // Max conversation turns in the prompt (default 10)
	MaxTokens    int           // Completion token cap (default 300)
	Temperature  float64       // Default 0.7
}

func (c ConversationConfig) normalized() ConversationConfig {
	if c.Persona == "" {
		c.Persona = defaultPersona
	}
	if c.Deadline <= 0 {
		c.Deadline = 3 * time.Second
	}
	if c.MaxResponse <= 0 {
		c.MaxResponse = 600
	}
	if c.MemoryBudget <= 0 {
		c.MemoryBudget = 5
	}
	if c.WindowBudget <= 0 {
		c.WindowBudget = 10
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 300
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.7
	}
	return c
}

// ConversationHandler answers open-ended turns with the language model,
// grounded by retrieved memories and the conversation window.
type ConversationHandler struct {
	llm    service.LLMClient
	config ConversationConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewConversationHandler creates the handler.
func NewConversationHandler(llm service.LLMClient, config ConversationConfig, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{
		llm:    llm,
		config: config.normalized(),
		logger: logger.With(zap.String("component", "conversation-handler")),
		now:    time.Now,
	}
}

// SetClock overrides the clock. Tests only.
func (h *ConversationHandler) SetClock(now func() time.Time) { h.now = now }

func (h *ConversationHandler) Name() string { return "conversation" }

func (h *ConversationHandler) Handle(ctx context.Context, inv *Invocation) entity.HandlerResult {
	messages := h.buildPrompt(inv)

	cctx, cancel := context.WithTimeout(ctx, h.config.Deadline)
	defer cancel()
	resp, err := h.llm.Complete(cctx, &service.CompletionRequest{
		Model:       h.config.Model,
		Messages:    messages,
		MaxTokens:   h.config.MaxTokens,
		Temperature: h.config.Temperature,
	})
	if err != nil {
		h.logger.Error("Conversation model call failed", zap.Error(err))
		return entity.HandlerResult{
			Text:        cannedConversationFailure,
			Status:      entity.HandlerFailed,
			Diagnostics: map[string]string{"error": err.Error()},
		}
	}

	text := h.postProcess(resp.Content)
	if text == "" {
		h.logger.Error("Conversation model returned empty output")
		return entity.HandlerResult{Text: cannedConversationFailure, Status: entity.HandlerFailed}
	}

	return entity.HandlerResult{
		Text:        text,
		Status:      entity.HandlerOK,
		Diagnostics: map[string]string{"model": resp.ModelUsed},
	}
}

// buildPrompt assembles persona, time-of-day, retrieved memories and the
// conversation window into a message list.
func (h *ConversationHandler) buildPrompt(inv *Invocation) []service.Message {
	var system strings.Builder
	system.WriteString(h.config.Persona)
	fmt.Fprintf(&system, "\n\nIt is %s on %s.", timeOfDay(h.now()), h.now().Format("Monday"))
	if inv.Overrides.Volume == "quiet" {
		system.WriteString("\nKeep the answer to one short sentence.")
	}

	if n := len(inv.Memories); n > 0 {
		if n > h.config.MemoryBudget {
			n = h.config.MemoryBudget
		}
		system.WriteString("\n\nThings you remember about this household:")
		for _, s := range inv.Memories[:n] {
			fmt.Fprintf(&system, "\n- %s", s.Memory.Content)
		}
	}

	messages := []service.Message{{Role: "system", Content: system.String()}}

	if inv.Conversation != nil {
		turns := inv.Conversation.Turns()
		if len(turns) > h.config.WindowBudget {
			turns = turns[len(turns)-h.config.WindowBudget:]
		}
		for _, t := range turns {
			role := "user"
			if t.Role == conversation.RoleAssistant {
				role = "assistant"
			}
			content := t.Text
			if t.Role == conversation.RoleSummary {
				content = "Earlier in this conversation: " + t.Text
			}
			messages = append(messages, service.Message{Role: role, Content: content})
		}
	}

	messages = append(messages, service.Message{Role: "user", Content: inv.Request.Utterance})
	return messages
}

// postProcess strips markup unsafe for speech and enforces the length cap,
// cutting at a sentence boundary when one is close enough.
func (h *ConversationHandler) postProcess(text string) string {
	text = markupRe.ReplaceAllString(text, "")
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= h.config.MaxResponse {
		return text
	}
	cut := text[:h.config.MaxResponse]
	if i := strings.LastIndexAny(cut, ".!?"); i > h.config.MaxResponse/2 {
		return cut[:i+1]
	}
	return strings.TrimSpace(cut)
}

func timeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 5:
		return "the middle of the night"
	case h < 12:
		return "morning"
	case h < 17:
		return "afternoon"
	case h < 21:
		return "evening"
	default:
		return "night"
	}
}
