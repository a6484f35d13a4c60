package advisor

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/free4inno/intent-hub/internal/domain"
)

// ProviderConfig is the tagged provider variant: one shape dispatched by a
// small adapter instead of per-provider classes.
type ProviderConfig struct {
	Provider    string
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
}

// Providers speaking the OpenAI wire protocol, with their default endpoints
// and models. Gemini is the one non-OpenAI-compatible variant.
var openAICompatible = map[string]struct{ baseURL, model string }{
	"deepseek":   {"https://api.deepseek.com/v1", "deepseek-chat"},
	"openrouter": {"https://openrouter.ai/api/v1", "openai/gpt-4o-mini"},
	"doubao":     {"https://ark.cn-beijing.volces.com/api/v3", ""},
	"qwen":       {"https://dashscope.aliyuncs.com/compatible-mode/v1", "qwen-turbo"},
}

// newModel builds the langchaingo model for a provider config.
func newModel(ctx context.Context, cfg ProviderConfig) (llms.Model, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: LLM provider %q needs an API key", domain.ErrValidation, cfg.Provider)
	}
	if cfg.Provider == "gemini" {
		model := cfg.Model
		if model == "" {
			model = "gemini-pro"
		}
		m, err := googleai.New(ctx, googleai.WithAPIKey(cfg.APIKey), googleai.WithDefaultModel(model))
		if err != nil {
			return nil, fmt.Errorf("%w: gemini init: %v", domain.ErrBackendUnavailable, err)
		}
		return m, nil
	}

	defaults, ok := openAICompatible[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported LLM provider %q", domain.ErrValidation, cfg.Provider)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaults.baseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaults.model
	}
	if model == "" {
		return nil, fmt.Errorf("%w: provider %q needs an explicit model name", domain.ErrValidation, cfg.Provider)
	}
	m, err := openai.New(
		openai.WithToken(cfg.APIKey),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s init: %v", domain.ErrBackendUnavailable, cfg.Provider, err)
	}
	return m, nil
}
