package orchestrator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dusk-indust/ordercopilot/internal/config"
	"github.com/dusk-indust/ordercopilot/internal/llm"
)

// ModelFunc builds the raw model for a model name.
type ModelFunc func(ctx context.Context, name string) (llm.Model, error)

// Models hands out retrying models by name, building each once.
type Models struct {
	build    ModelFunc
	policy   llm.RetryPolicy
	logger   *zap.Logger
	observer llm.Observer

	mu    sync.Mutex
	cache map[string]llm.Model
}

// ModelsOption configures Models.
type ModelsOption func(*Models)

// WithModelFunc replaces the Gemini constructor, e.g. with scripted models.
func WithModelFunc(fn ModelFunc) ModelsOption {
	return func(m *Models) { m.build = fn }
}

// WithModelLogger sets the logger used by the retry wrapper.
func WithModelLogger(l *zap.Logger) ModelsOption {
	return func(m *Models) { m.logger = l }
}

// WithModelObserver reports every model call to o.
func WithModelObserver(o llm.Observer) ModelsOption {
	return func(m *Models) { m.observer = o }
}

// NewModels returns Gemini-backed models for cfg. Without an API key it
// returns llm.ErrNoAPIKey unless a ModelFunc is supplied.
func NewModels(cfg config.LLMConfig, opts ...ModelsOption) (*Models, error) {
	m := &Models{
		policy: llm.RetryPolicy{
			Attempts:     cfg.Retry.Attempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			ExpBase:      cfg.Retry.ExpBase,
			StatusCodes:  cfg.Retry.StatusCodes,
		},
		logger: zap.NewNop(),
		cache:  make(map[string]llm.Model),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.build == nil {
		if cfg.APIKey == "" {
			return nil, llm.ErrNoAPIKey
		}
		key := cfg.APIKey
		m.build = func(ctx context.Context, name string) (llm.Model, error) {
			return llm.NewGemini(ctx, key, name)
		}
	}
	return m, nil
}

// Get returns the model called name wrapped in the retry policy.
func (m *Models) Get(ctx context.Context, name string) (llm.Model, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if model, ok := m.cache[name]; ok {
		return model, nil
	}
	raw, err := m.build(ctx, name)
	if err != nil {
		return nil, err
	}
	opts := []llm.RetryOption{llm.WithRetryLogger(m.logger)}
	if m.observer != nil {
		opts = append(opts, llm.WithRetryObserver(m.observer))
	}
	model := llm.NewRetrying(raw, m.policy, opts...)
	m.cache[name] = model
	return model, nil
}
