package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/careassist/internal/assistant"
	"github.com/xiaot623/careassist/internal/domain"
)

// observeRun mirrors driver progress into the store and the hub. It runs on a
// detached context so a cancelled caller still leaves a consistent run row.
func (s *Service) observeRun(ev assistant.Event) {
	ctx := context.Background()
	log := s.logger.With(zap.String("run_id", ev.RunID), zap.String("event", string(ev.Type)))

	var payload interface{}
	switch ev.Type {
	case domain.EventTypeRunCreated:
		payload = domain.RunCreatedPayload{AssistantID: s.driver.AssistantID()}
		run := &domain.Run{
			RunID:       ev.RunID,
			SessionID:   ev.SessionID,
			AssistantID: s.driver.AssistantID(),
			Status:      ev.Status,
			StartedAt:   time.Now(),
		}
		if err := s.store.CreateRun(ctx, run); err != nil {
			log.Error("failed to save run", zap.Error(err))
		}

	case domain.EventTypeRunStatus:
		payload = domain.RunStatusPayload{Status: ev.Status, Poll: ev.Poll}
		if err := s.store.UpdateRunStatus(ctx, ev.RunID, ev.Status, ev.Poll); err != nil {
			log.Error("failed to update run status", zap.Error(err))
		}

	case domain.EventTypeRunDone:
		done := domain.RunDonePayload{Polls: ev.Poll}
		if ev.Reply != nil {
			done.MessageID = ev.Reply.MessageID
			done.Reply = ev.Reply.Text
		}
		payload = done
		if err := s.store.UpdateRunCompleted(ctx, ev.RunID, ev.Status, ev.Poll, nil); err != nil {
			log.Error("failed to complete run", zap.Error(err))
		}

	case domain.EventTypeRunFailed:
		failed := failurePayload(ev.Status, ev.Err)
		payload = failed
		errData, _ := json.Marshal(failed)
		if err := s.store.UpdateRunCompleted(ctx, ev.RunID, failed.Status, ev.Poll, errData); err != nil {
			log.Error("failed to complete run", zap.Error(err))
		}

	default:
		return
	}

	if err := s.recordEvent(ctx, ev.SessionID, ev.RunID, ev.Type, payload); err != nil {
		log.Error("failed to record event", zap.Error(err))
	}
}

// failurePayload describes a run error with a stable code.
func failurePayload(status domain.RunStatus, err error) domain.RunFailedPayload {
	p := domain.RunFailedPayload{Code: ErrorCode(err), Status: status}
	if err != nil {
		p.Message = err.Error()
	}
	var failed *domain.RunFailedError
	if errors.As(err, &failed) && failed.Code != "" {
		p.Code = failed.Code
	}
	var timeout *domain.TimeoutError
	switch {
	case errors.As(err, &timeout):
		p.Status = domain.RunStatusTimedOut
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		p.Status = domain.RunStatusAbandoned
	case p.Status.IsSuccess():
		p.Status = domain.RunStatusReplyFailed
	}
	if p.Status == "" {
		p.Status = domain.RunStatusFailed
	}
	return p
}

// ErrorCode maps an error to the code exposed in events and API responses.
func ErrorCode(err error) string {
	var (
		cfgErr      *domain.ConfigurationError
		svcErr      *domain.ServiceError
		failed      *domain.RunFailedError
		unsupported *domain.UnsupportedContentError
		timeout     *domain.TimeoutError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, domain.ErrRunInProgress):
		return "run_in_progress"
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, domain.ErrRunNotFound):
		return "run_not_found"
	case errors.Is(err, domain.ErrMessageNotFound):
		return "message_not_found"
	case errors.Is(err, domain.ErrMessageRejected):
		return "policy_blocked"
	case errors.As(err, &cfgErr):
		return "configuration_error"
	case errors.As(err, &failed):
		return "run_failed"
	case errors.As(err, &unsupported):
		return "unsupported_content"
	case errors.As(err, &timeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.As(err, &svcErr):
		if svcErr.InvalidAPIKey() {
			return "invalid_api_key"
		}
		return "service_error"
	}
	return "internal_error"
}

// recordEvent records an event to the store and publishes it to the hub.
func (s *Service) recordEvent(ctx context.Context, sessionID, runID string, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID:   "evt_" + uuid.New().String()[:8],
		SessionID: sessionID,
		RunID:     runID,
		Ts:        time.Now().UnixMilli(),
		Type:      eventType,
		Payload:   payloadBytes,
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return err
	}

	if s.publisher != nil {
		if err := s.publisher.BroadcastJSON(sessionID, event); err != nil {
			s.logger.Warn("failed to publish event", zap.String("event_id", event.EventID), zap.Error(err))
		}
	}
	return nil
}
