package llm

import (
	"context"
	"fmt"

	"github.com/abhisek/alis/internal/logger"
)

// NewProvider creates a Provider from configuration, wrapped with
// middleware: caller → timeout → retry → logging → base.
func NewProvider(ctx context.Context, cfg Config, recorder Recorder, log *logger.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case ProviderAnthropic:
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case ProviderOpenAI:
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case ProviderGemini:
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case ProviderOpenRouter:
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case ProviderMock:
		if cfg.Script == nil {
			return nil, fmt.Errorf("mock provider needs a script")
		}
		base = NewScriptedProvider(cfg.Script)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	logged := WithLogging(base, cfg.Provider, recorder, log)
	retried := WithRetry(logged, cfg.Retry)
	return WithTimeout(retried, cfg.Timeout), nil
}

// NewProviderFromEnv resolves configuration from ALIS_* variables, falling
// back to the vendors' standard key variables, and then to the mock
// provider driven by fallback when no key is found. The resolved Config is
// returned alongside the provider so callers can report what was chosen.
func NewProviderFromEnv(ctx context.Context, recorder Recorder, log *logger.Logger, fallback ScriptFunc) (Provider, Config, error) {
	cfg := ConfigFromEnv()
	if !knownProvider(cfg.Provider) {
		return nil, cfg, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if !cfg.HasKey() {
		if discovered, ok := DiscoverConfig(); ok {
			discovered.Timeout = cfg.Timeout
			cfg = discovered
		} else {
			cfg.Provider = ProviderMock
		}
	}
	if cfg.Provider == ProviderMock {
		cfg.Script = fallback
	}

	p, err := NewProvider(ctx, cfg, recorder, log)
	if err != nil {
		return nil, cfg, err
	}
	return p, cfg, nil
}
