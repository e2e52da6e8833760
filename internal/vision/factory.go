package vision

import (
	"context"
	"fmt"

	"github.com/deskpilot/backend/internal/infrastructure/logging"
)

// New builds the configured vision client.
func New(ctx context.Context, cfg Config, logger *logging.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vision: API key is required")
	}
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAI(cfg, logger), nil
	case "gemini":
		return NewGemini(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("vision: unknown provider %q", cfg.Provider)
	}
}
