// Package openai provides a client for an Assistants-style completion service
// built around threads, messages and runs.
package openai

import "context"

// CompletionService defines the remote operations the conversation driver consumes.
type CompletionService interface {
	// CreateThread creates an empty conversation thread.
	CreateThread(ctx context.Context) (*Thread, error)

	// CreateMessage appends a message to a thread.
	CreateMessage(ctx context.Context, threadID string, req *CreateMessageRequest) (*ThreadMessage, error)

	// CreateRun starts a run of the given assistant over a thread.
	CreateRun(ctx context.Context, threadID string, req *CreateRunRequest) (*Run, error)

	// GetRun retrieves the current state of a run.
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)

	// ListMessages lists the messages of a thread.
	ListMessages(ctx context.Context, threadID string, params ListMessagesParams) (*MessageList, error)
}

// Ensure Client implements CompletionService interface.
var _ CompletionService = (*Client)(nil)
