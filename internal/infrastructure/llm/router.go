package llm

import (
	"context"
	"sync"
	"time"

	"github.com/barnabee/barnabee/internal/domain/service"
	apperrors "github.com/barnabee/barnabee/pkg/errors"
	"go.uber.org/zap"
)

// Router implements service.LLMClient by routing to the first provider
// that serves the requested model, with per-provider circuit breakers,
// transient-error retry and failover down the chain.
type Router struct {
	providers []Provider
	stats     map[string]*providerStats
	breakers  map[string]*CircuitBreaker
	mu        sync.RWMutex
	logger    *zap.Logger

	retryAttempts int
	retryBase     time.Duration
}

// providerStats tracks per-provider call metrics.
type providerStats struct {
	TotalCalls   int64
	FailureCount int64
	LastLatency  time.Duration
}

var _ service.LLMClient = (*Router)(nil)

// NewRouter creates an empty router. retryAttempts bounds transient
// retries per provider before failing over.
func NewRouter(retryAttempts int, logger *zap.Logger) *Router {
	if retryAttempts <= 0 {
		retryAttempts = 2
	}
	return &Router{
		stats:         make(map[string]*providerStats),
		breakers:      make(map[string]*CircuitBreaker),
		logger:        logger.With(zap.String("component", "llm-router")),
		retryAttempts: retryAttempts,
		retryBase:     100 * time.Millisecond,
	}
}

// AddProvider appends a provider to the failover chain. Providers are
// tried in insertion order.
func (r *Router) AddProvider(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
	r.stats[p.Name()] = &providerStats{}
	r.breakers[p.Name()] = NewCircuitBreaker(5, 30*time.Second)
	r.logger.Info("LLM provider added",
		zap.String("name", p.Name()),
		zap.Strings("models", p.Models()),
	)
}

// HasProviders reports whether any provider has been registered.
func (r *Router) HasProviders() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}

// Complete routes the request down the provider chain.
func (r *Router) Complete(ctx context.Context, req *service.CompletionRequest) (*service.CompletionResponse, error) {
	r.mu.RLock()
	providers := make([]Provider, len(r.providers))
	copy(providers, r.providers)
	r.mu.RUnlock()

	var lastErr error
	for _, p := range providers {
		if req.Model != "" && !p.SupportsModel(req.Model) {
			continue
		}
		if cb := r.breaker(p.Name()); cb != nil && !cb.Allow() {
			r.logger.Debug("Provider circuit open, skipping",
				zap.String("provider", p.Name()),
			)
			continue
		}

		start := time.Now()
		var resp *service.CompletionResponse
		err := retryBackoff(ctx, r.retryAttempts, r.retryBase, 2*time.Second, func() error {
			var callErr error
			resp, callErr = p.Complete(ctx, req)
			return callErr
		})
		latency := time.Since(start)

		r.mu.Lock()
		if s, ok := r.stats[p.Name()]; ok {
			s.TotalCalls++
			s.LastLatency = latency
			if err != nil {
				s.FailureCount++
			}
		}
		r.mu.Unlock()

		if err != nil {
			if cb := r.breaker(p.Name()); cb != nil {
				cb.RecordFailure()
			}
			lastErr = err
			r.logger.Warn("Provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.Duration("latency", latency),
				zap.Error(err),
			)
			continue
		}

		if cb := r.breaker(p.Name()); cb != nil {
			cb.RecordSuccess()
		}
		r.logger.Debug("Provider succeeded",
			zap.String("provider", p.Name()),
			zap.Duration("latency", latency),
			zap.Int("tokens", resp.TokensUsed),
		)
		return resp, nil
	}

	if lastErr != nil {
		code := apperrors.CodeOf(lastErr)
		if code == "" {
			code = apperrors.CodeTransientExternal
		}
		return nil, apperrors.Wrap(code, "all providers failed", lastErr)
	}
	return nil, apperrors.NewPermanent("no provider available for model "+req.Model, nil)
}

func (r *Router) breaker(name string) *CircuitBreaker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.breakers[name]
}

// ProviderStatus describes one provider's health and call metrics.
type ProviderStatus struct {
	Name          string   `json:"name"`
	Models        []string `json:"models"`
	Available     bool     `json:"available"`
	TotalCalls    int64    `json:"total_calls"`
	FailureCount  int64    `json:"failure_count"`
	LastLatencyMs float64  `json:"last_latency_ms"`
	CircuitState  string   `json:"circuit_state"`
}

// ListProviders returns names, health and metrics for every provider.
func (r *Router) ListProviders(ctx context.Context) []ProviderStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []ProviderStatus
	for _, p := range r.providers {
		ps := ProviderStatus{
			Name:      p.Name(),
			Models:    p.Models(),
			Available: p.IsAvailable(ctx),
		}
		if s, ok := r.stats[p.Name()]; ok {
			ps.TotalCalls = s.TotalCalls
			ps.FailureCount = s.FailureCount
			ps.LastLatencyMs = float64(s.LastLatency) / float64(time.Millisecond)
		}
		if cb, ok := r.breakers[p.Name()]; ok {
			ps.CircuitState = cb.State().String()
		}
		result = append(result, ps)
	}
	return result
}
