package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/barnabee/barnabee/internal/domain/memory"
	apperrors "github.com/barnabee/barnabee/pkg/errors"
	"go.uber.org/zap"
)

// OllamaEmbedder generates embeddings via the Ollama HTTP API. It
// implements memory.Embedder.
type OllamaEmbedder struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
	logger    *zap.Logger
}

var _ memory.Embedder = (*OllamaEmbedder)(nil)

// embedRequest matches the Ollama /api/embed payload.
type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

// embedResponse matches the Ollama /api/embed response.
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllamaEmbedder creates an Ollama embedding client and probes the
// model once to learn the vector dimension.
func NewOllamaEmbedder(baseURL, model string, logger *zap.Logger) (*OllamaEmbedder, error) {
	e := &OllamaEmbedder{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger.With(zap.String("component", "ollama-embedder")),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	probe, err := e.Embed(ctx, "dimension probe")
	if err != nil {
		return nil, fmt.Errorf("probe embedding dimension for model %s: %w", model, err)
	}
	e.dimension = len(probe)

	e.logger.Info("Ollama embedder initialized",
		zap.String("model", model),
		zap.String("url", baseURL),
		zap.Int("dimension", e.dimension),
	)
	return e, nil
}

// Embed generates an embedding vector for one text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.doEmbed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, apperrors.NewPermanent("empty embedding response from ollama", nil)
	}
	return vectors[0], nil
}

// EmbedBatch embeds multiple texts in one call; /api/embed accepts a
// []string input natively.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.doEmbed(ctx, texts)
}

// Dimension returns the vector dimension learned at init.
func (e *OllamaEmbedder) Dimension() int {
	return e.dimension
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, input any) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: input})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternalInvariant, "marshal embed request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.NewPermanent("build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apperrors.NewTransient("ollama embed request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("ollama embed returned %d: %s", resp.StatusCode, respBody)
		if resp.StatusCode >= 500 {
			return nil, apperrors.NewTransient(msg, nil)
		}
		return nil, apperrors.NewPermanent(msg, nil)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.NewPermanent("decode embed response", err)
	}
	if len(parsed.Embeddings) == 0 {
		return nil, apperrors.NewPermanent("ollama returned an empty embeddings array", nil)
	}
	return parsed.Embeddings, nil
}
