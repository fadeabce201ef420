package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/barnabee/barnabee/internal/domain/service"
	"github.com/barnabee/barnabee/internal/infrastructure/llm"
	apperrors "github.com/barnabee/barnabee/pkg/errors"
	"go.uber.org/zap"
)

func init() {
	llm.RegisterFactory("openai", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		return New(cfg, logger)
	})
}

// Provider talks to any OpenAI-compatible chat completion endpoint
// (OpenAI, Ollama, llama.cpp server, vLLM).
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	models  []string
	client  *http.Client
	logger  *zap.Logger
}

// New creates a provider from config.
func New(cfg llm.ProviderConfig, logger *zap.Logger) *Provider {
	return &Provider{
		name:    cfg.Name,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		models:  cfg.Models,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger.With(zap.String("provider", cfg.Name)),
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Models() []string { return p.models }

func (p *Provider) SupportsModel(model string) bool {
	for _, m := range p.models {
		if m == model {
			return true
		}
	}
	return false
}

// IsAvailable probes the models endpoint with a short deadline.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return false
	}
	p.setHeaders(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

type chatRequest struct {
	Model       string            `json:"model"`
	Messages    []service.Message `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete implements service.LLMClient. Status codes map onto the error
// taxonomy: 5xx and 429 are transient, other 4xx permanent.
func (p *Provider) Complete(ctx context.Context, req *service.CompletionRequest) (*service.CompletionResponse, error) {
	payload := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternalInvariant, "marshal chat request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewPermanent("build chat request", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewTransient("chat completion request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("chat completion returned %d: %s", resp.StatusCode, respBody)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperrors.NewTransient(msg, nil)
		}
		return nil, apperrors.NewPermanent(msg, nil)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewPermanent("decode chat response", err)
	}
	if parsed.Error != nil {
		return nil, apperrors.NewPermanent("provider error: "+parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return nil, apperrors.NewPermanent("chat response contained no choices", nil)
	}

	model := parsed.Model
	if model == "" {
		model = req.Model
	}
	return &service.CompletionResponse{
		Content:    parsed.Choices[0].Message.Content,
		ModelUsed:  model,
		TokensUsed: parsed.Usage.TotalTokens,
	}, nil
}

func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}
