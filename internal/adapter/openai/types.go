package openai

import (
	"encoding/json"
	"fmt"
)

// Thread represents a conversation thread.
type Thread struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	CreatedAt int64  `json:"created_at"`
}

// CreateMessageRequest represents the request body for adding a message.
type CreateMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ThreadMessage represents a message stored on a thread.
type ThreadMessage struct {
	ID          string           `json:"id"`
	Object      string           `json:"object"`
	CreatedAt   int64            `json:"created_at"`
	ThreadID    string           `json:"thread_id"`
	Role        string           `json:"role"`
	Content     []MessageContent `json:"content"`
	AssistantID string           `json:"assistant_id,omitempty"`
	RunID       string           `json:"run_id,omitempty"`
}

// MessageContent is one part of a message. Only text parts carry Text.
type MessageContent struct {
	Type      string          `json:"type"`
	Text      *TextContent    `json:"text,omitempty"`
	ImageFile json.RawMessage `json:"image_file,omitempty"`
	ImageURL  json.RawMessage `json:"image_url,omitempty"`
}

// TextContent is the body of a text content part.
type TextContent struct {
	Value       string            `json:"value"`
	Annotations []json.RawMessage `json:"annotations,omitempty"`
}

// CreateRunRequest represents the request body for starting a run.
type CreateRunRequest struct {
	AssistantID  string `json:"assistant_id"`
	Instructions string `json:"instructions,omitempty"`
}

// Run represents a run of an assistant over a thread.
type Run struct {
	ID          string    `json:"id"`
	Object      string    `json:"object"`
	CreatedAt   int64     `json:"created_at"`
	ThreadID    string    `json:"thread_id"`
	AssistantID string    `json:"assistant_id"`
	Status      string    `json:"status"`
	LastError   *RunError `json:"last_error,omitempty"`
}

// RunError is the remote diagnostic attached to a failed run.
type RunError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ListMessagesParams controls message listing.
type ListMessagesParams struct {
	Limit int
	Order string // "asc" or "desc"
	RunID string
}

// MessageList represents a page of thread messages.
type MessageList struct {
	Object  string          `json:"object"`
	Data    []ThreadMessage `json:"data"`
	FirstID string          `json:"first_id,omitempty"`
	LastID  string          `json:"last_id,omitempty"`
	HasMore bool            `json:"has_more"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// APIError represents the error details. StatusCode is filled from the HTTP response.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       string `json:"code,omitempty"`
	Param      string `json:"param,omitempty"`
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("completion API error [%d]: %s (type: %s)", e.StatusCode, e.Message, e.Type)
	}
	return fmt.Sprintf("completion API error [%d]: %s", e.StatusCode, e.Message)
}
