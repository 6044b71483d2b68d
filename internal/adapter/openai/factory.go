package openai

import (
	"go.uber.org/zap"

	"github.com/xiaot623/careassist/internal/config"
)

// NewCompletionService creates a completion service based on the configured mode.
// In MOCK mode it returns a MockClient; otherwise a real Client.
func NewCompletionService(cfg *config.Config, logger *zap.Logger) CompletionService {
	if cfg.MockMode() {
		if logger != nil {
			logger.Info("mock mode detected, using in-memory completion service",
				zap.String("env", config.EnvMode))
		}
		return NewMockClient()
	}
	return NewClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPTimeout)
}
