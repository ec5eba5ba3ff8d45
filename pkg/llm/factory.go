package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ksandersbbb5/crm-query-assistant/pkg/apperrors"
)

// NewFromConfig creates the client for the configured provider. Returns
// apperrors.ErrNotConfigured when no credential is present; callers degrade
// to canned queries and templated answers in that case.
func NewFromConfig(cfg *Config, logger *zap.Logger) (LLMClient, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.ErrNotConfigured
	}

	switch cfg.Provider {
	case "", "openai":
		client, err := NewClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	case "anthropic":
		client, err := NewAnthropicClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
