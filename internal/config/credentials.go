package config

import (
	"strings"

	"github.com/xiaot623/careassist/internal/domain"
)

const (
	apiKeyPrefix      = "sk-"
	assistantIDPrefix = "asst_"
)

// Validate checks that both credentials are present and well formed.
// It never touches the network.
func (c Credentials) Validate() error {
	if c.APIKey == "" {
		return &domain.ConfigurationError{Field: "OPENAI_API_KEY", Reason: "is not set"}
	}
	if !strings.HasPrefix(c.APIKey, apiKeyPrefix) {
		return &domain.ConfigurationError{Field: "OPENAI_API_KEY", Reason: "must start with " + apiKeyPrefix}
	}
	if c.AssistantID == "" {
		return &domain.ConfigurationError{Field: "OPENAI_ASSISTANT_ID", Reason: "is not set"}
	}
	if !strings.HasPrefix(c.AssistantID, assistantIDPrefix) {
		return &domain.ConfigurationError{Field: "OPENAI_ASSISTANT_ID", Reason: "must start with " + assistantIDPrefix}
	}
	return nil
}
