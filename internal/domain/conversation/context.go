package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/barnabee/barnabee/internal/domain/service"
	"go.uber.org/zap"
)

// Role tags a turn's author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSummary   Role = "summary"
)

// Turn is one exchange entry in a conversation window.
type Turn struct {
	Role      Role
	Speaker   string
	Text      string
	Timestamp time.Time
}

// Config holds the window tunables.
type Config struct {
	MaxTurns       int // Hard cap on retained turns (default 20)
	TokenHighWater int // Estimated tokens that trigger summarization (default 1500)
	KeepTail       int // Turns kept verbatim when summarizing (default 6)
	CharsPerToken  int // Token estimation divisor (default 4)
}

// DefaultConfig returns the window defaults.
func DefaultConfig() Config {
	return Config{
		MaxTurns:       20,
		TokenHighWater: 1500,
		KeepTail:       6,
		CharsPerToken:  4,
	}
}

func (c Config) normalized() Config {
	if c.MaxTurns <= 0 {
		c.MaxTurns = 20
	}
	if c.TokenHighWater <= 0 {
		c.TokenHighWater = 1500
	}
	if c.KeepTail <= 0 {
		c.KeepTail = 6
	}
	if c.CharsPerToken <= 0 {
		c.CharsPerToken = 4
	}
	return c
}

// Context is the bounded turn window for one conversation. When the
// estimated token count crosses the high-water mark, turns older than the
// keep-tail window collapse into a single summary turn.
type Context struct {
	mu           sync.Mutex
	config       Config
	turns        []Turn
	lastResponse string
}

// NewContext creates an empty window.
func NewContext(config Config) *Context {
	return &Context{config: config.normalized()}
}

// Append adds a turn and evicts past the hard cap.
func (c *Context) Append(turn Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, turn)
	if len(c.turns) > c.config.MaxTurns {
		c.turns = c.turns[len(c.turns)-c.config.MaxTurns:]
	}
	if turn.Role == RoleAssistant {
		c.lastResponse = turn.Text
	}
}

// Turns returns a copy of the current window.
func (c *Context) Turns() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// LastResponse returns the most recent assistant turn, for the
// repeat-a-response shortcut.
func (c *Context) LastResponse() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResponse
}

// EstimatedTokens approximates the window's token count from character
// length. The divisor is configuration, not a tokenizer.
func (c *Context) EstimatedTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estimatedTokensLocked()
}

func (c *Context) estimatedTokensLocked() int {
	chars := 0
	for _, t := range c.turns {
		chars += len(t.Text)
	}
	return chars / c.config.CharsPerToken
}

// NeedsSummary reports whether the window crossed the high-water mark and
// has enough head turns to collapse.
func (c *Context) NeedsSummary() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.estimatedTokensLocked() > c.config.TokenHighWater && len(c.turns) > c.config.KeepTail
}

// head returns the turns older than the keep-tail window.
func (c *Context) head() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.turns) <= c.config.KeepTail {
		return nil
	}
	head := make([]Turn, len(c.turns)-c.config.KeepTail)
	copy(head, c.turns[:len(c.turns)-c.config.KeepTail])
	return head
}

// collapse replaces the head turns with the summary turn. The head length
// is re-checked under the lock so a concurrent Append cannot lose turns.
func (c *Context) collapse(headLen int, summary Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if headLen > len(c.turns) {
		headLen = len(c.turns)
	}
	tail := c.turns[headLen:]
	c.turns = append([]Turn{summary}, tail...)
}

// Summarizer collapses old turns into a model-generated summary turn.
type Summarizer struct {
	llm      service.LLMClient
	model    string
	deadline time.Duration
	logger   *zap.Logger
}

// NewSummarizer creates a summarizer. deadline bounds the model call.
func NewSummarizer(llm service.LLMClient, model string, deadline time.Duration, logger *zap.Logger) *Summarizer {
	if deadline <= 0 {
		deadline = 3 * time.Second
	}
	return &Summarizer{
		llm:      llm,
		model:    model,
		deadline: deadline,
		logger:   logger.With(zap.String("component", "conversation-summarizer")),
	}
}

// Compact summarizes the head of the window when the high-water mark has
// been crossed. Failures leave the window untouched.
func (s *Summarizer) Compact(ctx context.Context, conv *Context) error {
	if !conv.NeedsSummary() {
		return nil
	}
	head := conv.head()
	if len(head) == 0 {
		return nil
	}

	var b strings.Builder
	for _, t := range head {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
	}

	cctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()
	resp, err := s.llm.Complete(cctx, &service.CompletionRequest{
		Model: s.model,
		Messages: []service.Message{
			{Role: "system", Content: "Summarize this household conversation in at most three sentences. Keep names, preferences and open requests."},
			{Role: "user", Content: b.String()},
		},
		MaxTokens:   200,
		Temperature: 0.2,
	})
	if err != nil {
		s.logger.Warn("Conversation summarization failed, window kept as is", zap.Error(err))
		return err
	}

	conv.collapse(len(head), Turn{
		Role:      RoleSummary,
		Text:      strings.TrimSpace(resp.Content),
		Timestamp: time.Now(),
	})
	return nil
}

// Store hands out the context for a conversation, creating it on first use.
type Store struct {
	mu       sync.Mutex
	config   Config
	contexts map[string]*Context
}

// NewStore creates a store whose contexts share the config.
func NewStore(config Config) *Store {
	return &Store{config: config.normalized(), contexts: make(map[string]*Context)}
}

// Context returns the window for the conversation.
func (s *Store) Context(conversationID string) *Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[conversationID]
	if !ok {
		c = NewContext(s.config)
		s.contexts[conversationID] = c
	}
	return c
}
