package service

import "context"

// Message is a single turn sent to the language model.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// CompletionRequest is a request to the language model.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"` // Empty = provider default
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	Content    string `json:"content"`
	ModelUsed  string `json:"model_used"`
	TokensUsed int    `json:"tokens_used"`
}

// LLMClient decouples the classifier and the conversation handler from
// concrete provider implementations. Calls must honor ctx deadlines.
type LLMClient interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
}
