// Package service implements the care assistant use cases on top of the
// conversation driver, the local store and the event hub.
package service

import (
	"go.uber.org/zap"

	"github.com/xiaot623/careassist/internal/adapter/openai"
	"github.com/xiaot623/careassist/internal/assistant"
	"github.com/xiaot623/careassist/internal/config"
	"github.com/xiaot623/careassist/internal/policy"
	store "github.com/xiaot623/careassist/internal/repository"
)

// Publisher pushes run events to live subscribers of a session.
type Publisher interface {
	BroadcastJSON(sessionID string, v interface{}) error
}

type Service struct {
	store        store.Store
	driver       *assistant.Driver
	config       *config.Config
	policyEngine *policy.Engine
	publisher    Publisher
	logger       *zap.Logger
}

// New creates the service. policyEngine and publisher may be nil.
func New(store store.Store, client openai.CompletionService, cfg *config.Config, policyEngine *policy.Engine, publisher Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:        store,
		config:       cfg,
		policyEngine: policyEngine,
		publisher:    publisher,
		logger:       logger,
	}
	s.driver = assistant.NewDriver(client, assistant.SettingsFromConfig(cfg),
		assistant.WithLogger(logger.Named("driver")),
		assistant.WithObserver(s.observeRun),
	)
	return s
}

// Ready reports whether conversations can be served with the current
// credentials.
func (s *Service) Ready() error {
	return s.driver.Validate()
}
