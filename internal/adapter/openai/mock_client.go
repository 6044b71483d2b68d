package openai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockClient is an in-memory implementation of CompletionService for local
// development. Each GetRun advances a run one step through
// queued, in_progress, completed; on completion an assistant reply is appended.
type MockClient struct {
	mu       sync.Mutex
	threads  map[string][]ThreadMessage // oldest first
	runs     map[string]*Run
	lastUser map[string]string
}

// NewMockClient creates a new mock completion client.
func NewMockClient() *MockClient {
	return &MockClient{
		threads:  make(map[string][]ThreadMessage),
		runs:     make(map[string]*Run),
		lastUser: make(map[string]string),
	}
}

// Ensure MockClient implements CompletionService interface.
var _ CompletionService = (*MockClient)(nil)

// CreateThread creates an empty mock thread.
func (m *MockClient) CreateThread(ctx context.Context) (*Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := "thread_" + shortID()
	m.threads[id] = nil
	return &Thread{ID: id, Object: "thread", CreatedAt: time.Now().Unix()}, nil
}

// CreateMessage appends a message to a mock thread.
func (m *MockClient) CreateMessage(ctx context.Context, threadID string, req *CreateMessageRequest) (*ThreadMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.threads[threadID]; !ok {
		return nil, notFound("thread", threadID)
	}
	msg := m.appendLocked(threadID, req.Role, req.Content, "")
	if req.Role == "user" {
		m.lastUser[threadID] = req.Content
	}
	return &msg, nil
}

// CreateRun starts a mock run in the queued state.
func (m *MockClient) CreateRun(ctx context.Context, threadID string, req *CreateRunRequest) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.threads[threadID]; !ok {
		return nil, notFound("thread", threadID)
	}
	run := &Run{
		ID:          "run_" + shortID(),
		Object:      "thread.run",
		CreatedAt:   time.Now().Unix(),
		ThreadID:    threadID,
		AssistantID: req.AssistantID,
		Status:      "queued",
	}
	m.runs[run.ID] = run
	copied := *run
	return &copied, nil
}

// GetRun advances and returns a mock run.
func (m *MockClient) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok || run.ThreadID != threadID {
		return nil, notFound("run", runID)
	}

	switch run.Status {
	case "queued":
		run.Status = "in_progress"
	case "in_progress":
		run.Status = "completed"
		reply := fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(m.lastUser[threadID], 100))
		m.appendLocked(threadID, "assistant", reply, run.ID)
	}

	copied := *run
	return &copied, nil
}

// ListMessages lists mock thread messages.
func (m *MockClient) ListMessages(ctx context.Context, threadID string, params ListMessagesParams) (*MessageList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs, ok := m.threads[threadID]
	if !ok {
		return nil, notFound("thread", threadID)
	}

	data := make([]ThreadMessage, 0, len(msgs))
	if params.Order == "asc" {
		data = append(data, msgs...)
	} else {
		for i := len(msgs) - 1; i >= 0; i-- {
			data = append(data, msgs[i])
		}
	}
	if params.RunID != "" {
		filtered := data[:0]
		for _, msg := range data {
			if msg.RunID == params.RunID {
				filtered = append(filtered, msg)
			}
		}
		data = filtered
	}

	hasMore := false
	if params.Limit > 0 && len(data) > params.Limit {
		data = data[:params.Limit]
		hasMore = true
	}

	list := &MessageList{Object: "list", Data: data, HasMore: hasMore}
	if len(data) > 0 {
		list.FirstID = data[0].ID
		list.LastID = data[len(data)-1].ID
	}
	return list, nil
}

func (m *MockClient) appendLocked(threadID, role, content, runID string) ThreadMessage {
	msg := ThreadMessage{
		ID:        "msg_" + shortID(),
		Object:    "thread.message",
		CreatedAt: time.Now().Unix(),
		ThreadID:  threadID,
		Role:      role,
		RunID:     runID,
		Content: []MessageContent{
			{Type: "text", Text: &TextContent{Value: content}},
		},
	}
	m.threads[threadID] = append(m.threads[threadID], msg)
	return msg
}

func notFound(kind, id string) error {
	return &APIError{
		StatusCode: 404,
		Type:       "invalid_request_error",
		Message:    fmt.Sprintf("No %s found with id '%s'.", kind, id),
	}
}

func shortID() string {
	return uuid.New().String()[:8]
}

// truncate truncates a string to the given number of runes.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
