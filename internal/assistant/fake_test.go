package assistant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xiaot623/careassist/internal/adapter/openai"
)

// fakeService is a scripted CompletionService. Each GetRun consumes the next
// status of the current run's script; the last status repeats.
type fakeService struct {
	mu sync.Mutex

	script    []string
	lastError *openai.RunError
	newest    []openai.MessageContent
	noReply   bool

	createThreadErr error
	getRunErr       error
	getRunGate      chan struct{}

	calls        []string
	userMessages []string
	runs         []string
	pollTimes    []time.Time
	pollIndex    int
}

func newFakeService(script ...string) *fakeService {
	return &fakeService{
		script: script,
		newest: []openai.MessageContent{{Type: "text", Text: &openai.TextContent{Value: "ok"}}},
	}
}

func (f *fakeService) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeService) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (f *fakeService) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeService) CreateThread(ctx context.Context) (*openai.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateThread")
	if f.createThreadErr != nil {
		return nil, f.createThreadErr
	}
	return &openai.Thread{ID: "thread_1"}, nil
}

func (f *fakeService) CreateMessage(ctx context.Context, threadID string, req *openai.CreateMessageRequest) (*openai.ThreadMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateMessage")
	f.userMessages = append(f.userMessages, req.Content)
	return &openai.ThreadMessage{ID: fmt.Sprintf("msg_%d", len(f.userMessages)), ThreadID: threadID, Role: req.Role}, nil
}

func (f *fakeService) CreateRun(ctx context.Context, threadID string, req *openai.CreateRunRequest) (*openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("run_%d", len(f.runs)+1)
	f.record("CreateRun " + id)
	f.runs = append(f.runs, id)
	f.pollIndex = 0
	return &openai.Run{ID: id, ThreadID: threadID, AssistantID: req.AssistantID, Status: "queued"}, nil
}

func (f *fakeService) GetRun(ctx context.Context, threadID, runID string) (*openai.Run, error) {
	if f.getRunGate != nil {
		select {
		case <-f.getRunGate:
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to send request: %w", ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetRun " + runID)
	f.pollTimes = append(f.pollTimes, time.Now())
	if f.getRunErr != nil {
		return nil, f.getRunErr
	}

	status := "in_progress"
	if len(f.script) > 0 {
		i := f.pollIndex
		if i >= len(f.script) {
			i = len(f.script) - 1
		}
		status = f.script[i]
	}
	f.pollIndex++

	run := &openai.Run{ID: runID, ThreadID: threadID, Status: status}
	if status == "failed" {
		run.LastError = f.lastError
	}
	return run, nil
}

func (f *fakeService) ListMessages(ctx context.Context, threadID string, params openai.ListMessagesParams) (*openai.MessageList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListMessages")
	if f.noReply {
		return &openai.MessageList{Object: "list"}, nil
	}
	return &openai.MessageList{
		Object: "list",
		Data: []openai.ThreadMessage{
			{ID: "msg_reply", ThreadID: threadID, Role: "assistant", Content: f.newest},
		},
	}, nil
}
