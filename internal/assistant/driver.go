// Package assistant drives a conversation with a remote AI assistant: it
// appends the user's message to a thread, starts a run, polls the run until
// it reaches a terminal status and extracts the newest reply.
//
// A Driver holds no remote state of its own besides the set of sessions that
// currently have an unresolved run. It is safe for concurrent use across
// sessions; within one session, runs are strictly sequential.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/careassist/internal/adapter/openai"
	"github.com/xiaot623/careassist/internal/config"
	"github.com/xiaot623/careassist/internal/domain"
)

// DefaultPollInterval is the wait between two run status checks.
const DefaultPollInterval = time.Second

// Operation names carried by ServiceError.Op.
const (
	OpCreateThread  = "create thread"
	OpAppendMessage = "append message"
	OpCreateRun     = "create run"
	OpRetrieveRun   = "retrieve run"
	OpListMessages  = "list messages"
)

// Settings configures a Driver.
type Settings struct {
	Credentials config.Credentials

	// PollInterval is the wait between status checks. Zero means DefaultPollInterval.
	PollInterval time.Duration
	// RunTimeout bounds the whole polling phase. Zero disables the bound.
	RunTimeout time.Duration
	// MaxPolls bounds the number of status checks. Zero disables the bound.
	MaxPolls int
}

// SettingsFromConfig builds driver settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Credentials:  cfg.Credentials(),
		PollInterval: cfg.PollInterval,
		RunTimeout:   cfg.RunTimeout,
		MaxPolls:     cfg.MaxPolls,
	}
}

// Session is the caller's handle on a remote conversation thread.
type Session struct {
	ID string
}

// Reply is the content extracted from the newest message of a session.
type Reply struct {
	MessageID   string
	Role        string
	ContentType string
	Text        string
}

// Exchange is the outcome of one message/reply round trip.
type Exchange struct {
	SessionID string
	RunID     string
	Status    domain.RunStatus
	Polls     int
	Reply     Reply
}

// Event is emitted to the observer as a run progresses.
type Event struct {
	Type      domain.EventType
	SessionID string
	RunID     string
	Status    domain.RunStatus
	Poll      int
	Reply     *Reply
	Err       error
}

// Observer receives run progress events. It is called synchronously from the
// goroutine driving the exchange.
type Observer func(Event)

// Option configures optional Driver behaviour.
type Option func(*Driver)

// WithLogger sets the driver logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver sets the run progress observer.
func WithObserver(observer Observer) Option {
	return func(d *Driver) {
		d.observer = observer
	}
}

// Driver turns user messages into assistant replies.
type Driver struct {
	client   openai.CompletionService
	settings Settings
	logger   *zap.Logger
	observer Observer

	mu     sync.Mutex
	active map[string]struct{}
}

// NewDriver creates a new conversation driver.
func NewDriver(client openai.CompletionService, settings Settings, opts ...Option) *Driver {
	if settings.PollInterval <= 0 {
		settings.PollInterval = DefaultPollInterval
	}
	d := &Driver{
		client:   client,
		settings: settings,
		logger:   zap.NewNop(),
		active:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// AssistantID returns the configured assistant identity.
func (d *Driver) AssistantID() string {
	return d.settings.Credentials.AssistantID
}

// Validate reports whether the driver is configured well enough to reach the
// completion service.
func (d *Driver) Validate() error {
	return d.settings.Credentials.Validate()
}

// CreateConversation obtains a fresh session handle from the completion service.
func (d *Driver) CreateConversation(ctx context.Context) (Session, error) {
	if err := d.settings.Credentials.Validate(); err != nil {
		return Session{}, err
	}

	thread, err := d.client.CreateThread(ctx)
	if err != nil {
		d.logger.Warn("failed to create thread", zap.Error(err))
		return Session{}, serviceError(OpCreateThread, err)
	}

	d.logger.Debug("conversation created", zap.String("session_id", thread.ID))
	return Session{ID: thread.ID}, nil
}

// SendAndAwaitReply submits text to the session and blocks until the
// assistant's reply is available.
func (d *Driver) SendAndAwaitReply(ctx context.Context, session Session, text string) (string, error) {
	ex, err := d.Exchange(ctx, session, text)
	if err != nil {
		return "", err
	}
	return ex.Reply.Text, nil
}

// Exchange performs submit, poll and extract for one user message.
func (d *Driver) Exchange(ctx context.Context, session Session, text string) (*Exchange, error) {
	return d.ExchangeAccepted(ctx, session, text, nil)
}

// ExchangeAccepted is Exchange with a hook that runs once the session's run
// guard is held and before anything is sent. A hook error aborts the
// exchange without a remote call.
func (d *Driver) ExchangeAccepted(ctx context.Context, session Session, text string, accepted func() error) (*Exchange, error) {
	if err := d.settings.Credentials.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyMessage
	}
	if session.ID == "" {
		return nil, fmt.Errorf("%w: empty session handle", domain.ErrSessionNotFound)
	}

	if !d.acquire(session.ID) {
		return nil, domain.ErrRunInProgress
	}
	defer d.release(session.ID)

	if accepted != nil {
		if err := accepted(); err != nil {
			return nil, err
		}
	}

	runID, err := d.submit(ctx, session, text)
	if err != nil {
		return nil, err
	}

	status, polls, err := d.poll(ctx, session, runID)
	if err != nil {
		d.emit(Event{Type: domain.EventTypeRunFailed, SessionID: session.ID, RunID: runID, Status: status, Poll: polls, Err: err})
		return nil, err
	}

	reply, err := d.extract(ctx, session)
	if err != nil {
		d.emit(Event{Type: domain.EventTypeRunFailed, SessionID: session.ID, RunID: runID, Status: status, Poll: polls, Err: err})
		return nil, err
	}

	d.emit(Event{Type: domain.EventTypeRunDone, SessionID: session.ID, RunID: runID, Status: status, Poll: polls, Reply: &reply})
	d.logger.Info("assistant replied",
		zap.String("session_id", session.ID),
		zap.String("run_id", runID),
		zap.Int("polls", polls))

	return &Exchange{
		SessionID: session.ID,
		RunID:     runID,
		Status:    status,
		Polls:     polls,
		Reply:     reply,
	}, nil
}

// submit appends the user message and starts a run bound to the assistant.
func (d *Driver) submit(ctx context.Context, session Session, text string) (string, error) {
	if _, err := d.client.CreateMessage(ctx, session.ID, &openai.CreateMessageRequest{
		Role:    string(domain.RoleUser),
		Content: text,
	}); err != nil {
		d.logger.Warn("failed to append message", zap.String("session_id", session.ID), zap.Error(err))
		return "", serviceError(OpAppendMessage, err)
	}

	run, err := d.client.CreateRun(ctx, session.ID, &openai.CreateRunRequest{
		AssistantID: d.settings.Credentials.AssistantID,
	})
	if err != nil {
		d.logger.Warn("failed to create run", zap.String("session_id", session.ID), zap.Error(err))
		return "", serviceError(OpCreateRun, err)
	}

	d.emit(Event{Type: domain.EventTypeRunCreated, SessionID: session.ID, RunID: run.ID, Status: domain.RunStatus(run.Status)})
	return run.ID, nil
}

// poll checks the run status until it is terminal. The first check is
// immediate; every non-terminal observation is followed by one interval wait.
func (d *Driver) poll(ctx context.Context, session Session, runID string) (domain.RunStatus, int, error) {
	start := time.Now()
	pollCtx := ctx
	if d.settings.RunTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, d.settings.RunTimeout)
		defer cancel()
	}

	polls := 0
	last := domain.RunStatusQueued
	timedOut := func() error {
		return &domain.TimeoutError{RunID: runID, Polls: polls, Elapsed: time.Since(start), LastStatus: last}
	}

	for {
		run, err := d.client.GetRun(pollCtx, session.ID, runID)
		if err != nil {
			if ctx.Err() != nil {
				return last, polls, ctx.Err()
			}
			if pollCtx.Err() != nil {
				return domain.RunStatusTimedOut, polls, timedOut()
			}
			d.logger.Warn("failed to retrieve run", zap.String("run_id", runID), zap.Error(err))
			return last, polls, serviceError(OpRetrieveRun, err)
		}
		polls++
		last = domain.RunStatus(run.Status)

		d.logger.Debug("run status",
			zap.String("run_id", runID),
			zap.String("status", run.Status),
			zap.Int("poll", polls))
		d.emit(Event{Type: domain.EventTypeRunStatus, SessionID: session.ID, RunID: runID, Status: last, Poll: polls})

		if last.IsSuccess() {
			return last, polls, nil
		}
		if last.IsTerminal() {
			failed := &domain.RunFailedError{RunID: runID, Status: last}
			if run.LastError != nil {
				failed.Code = run.LastError.Code
				failed.Message = run.LastError.Message
			}
			return last, polls, failed
		}
		if d.settings.MaxPolls > 0 && polls >= d.settings.MaxPolls {
			return domain.RunStatusTimedOut, polls, timedOut()
		}

		timer := time.NewTimer(d.settings.PollInterval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return last, polls, ctx.Err()
			}
			return domain.RunStatusTimedOut, polls, timedOut()
		case <-timer.C:
		}
	}
}

// extract returns the newest message of the session as a typed reply.
func (d *Driver) extract(ctx context.Context, session Session) (Reply, error) {
	list, err := d.client.ListMessages(ctx, session.ID, openai.ListMessagesParams{Limit: 1, Order: "desc"})
	if err != nil {
		return Reply{}, serviceError(OpListMessages, err)
	}
	if len(list.Data) == 0 {
		return Reply{}, &domain.UnsupportedContentError{}
	}

	newest := list.Data[0]
	if len(newest.Content) == 0 {
		return Reply{}, &domain.UnsupportedContentError{MessageID: newest.ID}
	}
	part := newest.Content[0]
	if part.Type != domain.ContentTypeText || part.Text == nil {
		return Reply{}, &domain.UnsupportedContentError{MessageID: newest.ID, ContentType: part.Type}
	}

	return Reply{
		MessageID:   newest.ID,
		Role:        newest.Role,
		ContentType: part.Type,
		Text:        part.Text.Value,
	}, nil
}

func (d *Driver) acquire(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.active[sessionID]; busy {
		return false
	}
	d.active[sessionID] = struct{}{}
	return true
}

func (d *Driver) release(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.active, sessionID)
}

func (d *Driver) emit(event Event) {
	if d.observer != nil {
		d.observer(event)
	}
}

// RunFailureEmitted reports whether err was returned after a run had been
// created. Such failures have already been sent to the observer as a
// run_failed event.
func RunFailureEmitted(err error) bool {
	var (
		failed      *domain.RunFailedError
		unsupported *domain.UnsupportedContentError
		timeout     *domain.TimeoutError
		svcErr      *domain.ServiceError
	)
	switch {
	case err == nil:
		return false
	case errors.As(err, &failed), errors.As(err, &unsupported), errors.As(err, &timeout):
		return true
	case errors.As(err, &svcErr):
		return svcErr.Op == OpRetrieveRun || svcErr.Op == OpListMessages
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// serviceError wraps a completion service failure, lifting the remote
// status and code when the service answered with an error body.
func serviceError(op string, err error) error {
	svcErr := &domain.ServiceError{Op: op, Err: err}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		svcErr.StatusCode = apiErr.StatusCode
		svcErr.Code = apiErr.Code
		svcErr.Message = apiErr.Message
	}
	return svcErr
}
