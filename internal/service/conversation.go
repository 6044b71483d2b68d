package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/careassist/internal/assistant"
	"github.com/xiaot623/careassist/internal/domain"
	"github.com/xiaot623/careassist/internal/policy"
)

const defaultUserID = "anonymous"

// SendResult is the outcome of SendMessage.
type SendResult struct {
	SessionID string           `json:"session_id"`
	RunID     string           `json:"run_id"`
	MessageID string           `json:"message_id,omitempty"`
	Reply     string           `json:"reply"`
	Status    domain.RunStatus `json:"status"`
	Polls     int              `json:"polls"`
}

// CreateConversation opens a remote thread and records it as a session.
func (s *Service) CreateConversation(ctx context.Context, userID string, metadata json.RawMessage) (*domain.Session, error) {
	if userID == "" {
		userID = defaultUserID
	}

	handle, err := s.driver.CreateConversation(ctx)
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		SessionID: handle.ID,
		UserID:    userID,
		CreatedAt: time.Now(),
		Metadata:  metadata,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Info("conversation created", zap.String("session_id", session.SessionID), zap.String("user_id", userID))
	return session, nil
}

// GetSession returns a locally known session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// SendMessage submits content to the session's assistant and waits for the reply.
func (s *Service) SendMessage(ctx context.Context, sessionID, content string) (*SendResult, error) {
	if err := s.driver.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrEmptyMessage
	}

	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.admit(ctx, session, content); err != nil {
		return nil, err
	}

	// The user message is recorded only once the driver holds the session's
	// run guard, so a rejected concurrent send leaves no trace.
	recordInput := func() error {
		msgID := "msg_" + uuid.New().String()[:8]
		userMsg := &domain.Message{
			MessageID: msgID,
			SessionID: session.SessionID,
			Role:      domain.RoleUser,
			Content:   content,
			CreatedAt: time.Now(),
		}
		if err := s.store.CreateMessage(ctx, userMsg); err != nil {
			s.logger.Error("failed to save user message", zap.String("session_id", sessionID), zap.Error(err))
		}
		if err := s.recordEvent(ctx, session.SessionID, "", domain.EventTypeUserInput, domain.UserInputPayload{
			MessageID: msgID,
			Content:   content,
		}); err != nil {
			s.logger.Error("failed to record user_input event", zap.Error(err))
		}
		return nil
	}

	ex, err := s.driver.ExchangeAccepted(ctx, assistant.Session{ID: session.SessionID}, content, recordInput)
	if err != nil {
		return nil, err
	}

	replyID := ex.Reply.MessageID
	if replyID == "" {
		replyID = "msg_" + uuid.New().String()[:8]
	}
	assistantMsg := &domain.Message{
		MessageID: replyID,
		SessionID: session.SessionID,
		RunID:     ex.RunID,
		Role:      domain.RoleAssistant,
		Content:   ex.Reply.Text,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateMessage(ctx, assistantMsg); err != nil {
		s.logger.Error("failed to save assistant message", zap.String("run_id", ex.RunID), zap.Error(err))
	}

	return &SendResult{
		SessionID: session.SessionID,
		RunID:     ex.RunID,
		MessageID: ex.Reply.MessageID,
		Reply:     ex.Reply.Text,
		Status:    ex.Status,
		Polls:     ex.Polls,
	}, nil
}

// admit evaluates the message admission policy.
func (s *Service) admit(ctx context.Context, session *domain.Session, content string) error {
	if s.policyEngine == nil {
		return nil
	}
	decision, err := s.policyEngine.Evaluate(ctx, policy.Input{
		SessionID:     session.SessionID,
		UserID:        session.UserID,
		Content:       content,
		ContentLength: utf8.RuneCountInString(content),
		MaxChars:      s.config.MaxMessageChars,
	})
	if err != nil {
		return fmt.Errorf("policy evaluation failed: %w", err)
	}
	if !decision.Allowed() {
		s.logger.Info("message rejected by policy",
			zap.String("session_id", session.SessionID),
			zap.String("reason", decision.Reason))
		return fmt.Errorf("%w: %s", domain.ErrMessageRejected, decision.Reason)
	}
	return nil
}
