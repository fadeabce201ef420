package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/barnabee/barnabee/internal/domain/service"
	"go.uber.org/zap"
)

// Provider is the infrastructure-layer model provider interface. Each
// provider implements service.LLMClient so the router can stand in for any
// of them.
type Provider interface {
	service.LLMClient

	// Name returns the provider identifier from configuration.
	Name() string

	// Models returns the model identifiers this provider serves.
	Models() []string

	// SupportsModel checks whether a model identifier is served here.
	SupportsModel(model string) bool

	// IsAvailable checks whether the provider endpoint is reachable.
	IsAvailable(ctx context.Context) bool
}

// ProviderConfig holds the configuration for one provider entry.
type ProviderConfig struct {
	Name    string   `json:"name" yaml:"name"`
	Type    string   `json:"type" yaml:"type"` // "openai" (default, OpenAI-compatible HTTP)
	BaseURL string   `json:"base_url" yaml:"base_url"`
	APIKey  string   `json:"api_key" yaml:"api_key"`
	Models  []string `json:"models" yaml:"models"`
}

// ProviderFactory creates a Provider from config. Providers register
// themselves via init() in their own package; adding a provider type means
// implementing Provider and calling RegisterFactory.
type ProviderFactory func(cfg ProviderConfig, logger *zap.Logger) Provider

var (
	factoryMu sync.RWMutex
	factories = map[string]ProviderFactory{}
)

// RegisterFactory registers a provider factory for the given type name.
func RegisterFactory(typeName string, factory ProviderFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[typeName] = factory
}

// CreateProvider creates a Provider using the registered factory for
// cfg.Type. An empty type defaults to "openai".
func CreateProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	t := cfg.Type
	if t == "" {
		t = "openai"
	}

	factoryMu.RLock()
	factory, ok := factories[t]
	factoryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider type %q", t)
	}
	return factory(cfg, logger), nil
}
