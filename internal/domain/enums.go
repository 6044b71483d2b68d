// Package domain defines the core domain models for the care assistant.
package domain

// RunStatus is the status of a completion run as reported by the remote service.
type RunStatus string

const (
	RunStatusQueued         RunStatus = "queued"
	RunStatusInProgress     RunStatus = "in_progress"
	RunStatusRequiresAction RunStatus = "requires_action"
	RunStatusCancelling     RunStatus = "cancelling"
	RunStatusCancelled      RunStatus = "cancelled"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusIncomplete     RunStatus = "incomplete"
	RunStatusExpired        RunStatus = "expired"

	// RunStatusTimedOut is local only: the poller gave up before the remote
	// run reached a terminal status.
	RunStatusTimedOut RunStatus = "timed_out"
	// RunStatusAbandoned is local only: the caller stopped waiting. The
	// remote run is left as it was.
	RunStatusAbandoned RunStatus = "abandoned"
	// RunStatusReplyFailed is local only: the run completed but no reply
	// could be extracted.
	RunStatusReplyFailed RunStatus = "reply_failed"
)

// IsTerminal reports whether no further transition can occur from s.
// requires_action counts as terminal because tool outputs are never submitted.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled,
		RunStatusExpired, RunStatusIncomplete, RunStatusRequiresAction:
		return true
	}
	return false
}

// IsSuccess reports whether s is the terminal success status.
func (s RunStatus) IsSuccess() bool {
	return s == RunStatusCompleted
}

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentTypeText is the only message content type the extractor accepts.
const ContentTypeText = "text"

// EventType represents the type of a trace event.
type EventType string

const (
	EventTypeUserInput  EventType = "user_input"
	EventTypeRunCreated EventType = "run_created"
	EventTypeRunStatus  EventType = "run_status"
	EventTypeRunDone    EventType = "run_done"
	EventTypeRunFailed  EventType = "run_failed"
)
