package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyMessage is returned for empty or whitespace-only message text.
	ErrEmptyMessage = errors.New("message content is required")
	// ErrRunInProgress is returned when a session already has an unresolved run.
	ErrRunInProgress = errors.New("a run is already in progress for this session")
	// ErrSessionNotFound is returned when a session is unknown locally.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRunNotFound is returned when a run is unknown locally.
	ErrRunNotFound = errors.New("run not found")
	// ErrMessageNotFound is returned when a message cursor is unknown.
	ErrMessageNotFound = errors.New("message not found")
	// ErrMessageRejected is returned when the admission policy blocks a message.
	ErrMessageRejected = errors.New("message rejected by policy")
)

// ConfigurationError reports a missing or malformed credential. It is raised
// before any network call is attempted.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("assistant configuration: %s %s", e.Field, e.Reason)
}

// ServiceError reports a transport failure or a remote rejection from the
// completion service.
type ServiceError struct {
	Op         string
	StatusCode int    // zero for transport failures
	Code       string // remote error code, e.g. invalid_api_key
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Code != "":
		return fmt.Sprintf("%s: completion service error [%d] %s: %s", e.Op, e.StatusCode, e.Code, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: completion service error [%d]: %s", e.Op, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// InvalidAPIKey reports whether the remote service rejected the credential.
func (e *ServiceError) InvalidAPIKey() bool {
	return e.Code == "invalid_api_key"
}

// RunFailedError reports that the remote service accepted the request but the
// run ended in a terminal failure status.
type RunFailedError struct {
	RunID   string
	Status  RunStatus
	Code    string
	Message string
}

func (e *RunFailedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("run %s %s: %s", e.RunID, e.Status, e.Message)
	}
	return fmt.Sprintf("run %s %s", e.RunID, e.Status)
}

// UnsupportedContentError reports that the newest message is not plain text.
type UnsupportedContentError struct {
	MessageID   string
	ContentType string
}

func (e *UnsupportedContentError) Error() string {
	if e.ContentType == "" {
		return "no reply content available"
	}
	return fmt.Sprintf("unsupported reply content type %q", e.ContentType)
}

// TimeoutError reports that polling gave up before the run became terminal.
type TimeoutError struct {
	RunID      string
	Polls      int
	Elapsed    time.Duration
	LastStatus RunStatus
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("run %s still %s after %d polls (%s)", e.RunID, e.LastStatus, e.Polls, e.Elapsed.Round(time.Millisecond))
}
