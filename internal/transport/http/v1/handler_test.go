package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/careassist/internal/adapter/openai"
	"github.com/xiaot623/careassist/internal/config"
	"github.com/xiaot623/careassist/internal/domain"
	"github.com/xiaot623/careassist/internal/policy"
	store "github.com/xiaot623/careassist/internal/repository"
	"github.com/xiaot623/careassist/internal/service"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.APIKey = "sk-test"
	cfg.AssistantID = "asst_test"
	cfg.PollInterval = 5 * time.Millisecond
	cfg.MaxMessageChars = 40
	return cfg
}

func newTestHandlerWithConfig(t *testing.T, cfg *config.Config) (*Handler, *store.SQLiteStore) {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}

	svc := service.New(db, openai.NewMockClient(), cfg, engine, nil, nil)
	return NewHandler(svc, nil), db
}

func newTestHandler(t *testing.T) (*Handler, *store.SQLiteStore) {
	return newTestHandlerWithConfig(t, testConfig())
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func createConversation(t *testing.T, e *echo.Echo, h *Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/v1/conversations", `{"user_id":"caregiver-1"}`), rec)
	if err := h.CreateConversation(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var session domain.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(session.SessionID, "thread_") {
		t.Fatalf("unexpected session id %q", session.SessionID)
	}
	return session.SessionID
}

func sendMessage(t *testing.T, e *echo.Echo, h *Handler, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/v1/conversations/"+sessionID+"/messages", body), rec)
	c.SetParamNames("session_id")
	c.SetParamValues(sessionID)
	if err := h.SendMessage(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func TestSendMessageRoundTrip(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)
	sessionID := createConversation(t, e, h)

	rec := sendMessage(t, e, h, sessionID, `{"content":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res service.SendResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Status != domain.RunStatusCompleted || !strings.Contains(res.Reply, `"hello"`) || res.RunID == "" {
		t.Fatalf("unexpected response: %+v", res)
	}

	rec = httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/runs/"+res.RunID, nil), rec)
	c.SetParamNames("run_id")
	c.SetParamValues(res.RunID)
	if err := h.GetRun(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/runs/"+res.RunID+"/events?types=run_done", nil), rec)
	c.SetParamNames("run_id")
	c.SetParamValues(res.RunID)
	if err := h.GetRunEvents(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var events struct {
		Events []domain.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(events.Events) != 1 || events.Events[0].Type != domain.EventTypeRunDone {
		t.Fatalf("unexpected events: %+v", events.Events)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/conversations/"+sessionID+"/runs", nil), rec)
	c.SetParamNames("session_id")
	c.SetParamValues(sessionID)
	if err := h.ListConversationRuns(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var runs struct {
		Runs []domain.Run `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(runs.Runs) != 1 || runs.Runs[0].RunID != res.RunID {
		t.Fatalf("unexpected runs: %+v", runs.Runs)
	}
}

func TestSendMessageErrors(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)
	sessionID := createConversation(t, e, h)

	tests := []struct {
		name      string
		sessionID string
		body      string
		status    int
		code      string
	}{
		{"blank content", sessionID, `{"content":"   "}`, http.StatusBadRequest, "empty_message"},
		{"invalid body", sessionID, `{"content":`, http.StatusBadRequest, "invalid_request"},
		{"too long", sessionID, `{"content":"` + strings.Repeat("x", 41) + `"}`, http.StatusForbidden, "policy_blocked"},
		{"unknown session", "thread_missing", `{"content":"hi"}`, http.StatusNotFound, "session_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := sendMessage(t, e, h, tt.sessionID, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			var resp ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Code != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, resp.Code)
			}
		})
	}
}

func TestCreateConversationMissingCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.AssistantID = ""
	e := echo.New()
	h, _ := newTestHandlerWithConfig(t, cfg)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/v1/conversations", nil), rec)
	if err := h.CreateConversation(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)
	if err := h.Health(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rec.Code != http.StatusOK || health["ready"] != false {
		t.Fatalf("unexpected health: %d %v", rec.Code, health)
	}
}

func TestGetConversationMessagesLimit(t *testing.T) {
	e := echo.New()
	h, db := newTestHandler(t)

	session := &domain.Session{SessionID: "thread_1", UserID: "u1", CreatedAt: time.Now()}
	if err := db.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		msg := &domain.Message{
			MessageID: "m" + string(rune('1'+i)),
			SessionID: "thread_1",
			Role:      domain.RoleUser,
			Content:   "hello",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := db.CreateMessage(context.Background(), msg); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/conversations/thread_1/messages?limit=1", nil), rec)
	c.SetParamNames("session_id")
	c.SetParamValues("thread_1")
	if err := h.GetConversationMessages(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Messages []domain.Message `json:"messages"`
		HasMore  bool             `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].MessageID != "m2" || !resp.HasMore {
		t.Fatalf("unexpected response: %+v", resp)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/conversations/thread_1/messages?before=m_gone", nil), rec)
	c.SetParamNames("session_id")
	c.SetParamValues("thread_1")
	if err := h.GetConversationMessages(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown cursor, got %d", rec.Code)
	}
}

func TestGetRunNotFound(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/v1/runs/run_missing/events", nil), rec)
	c.SetParamNames("run_id")
	c.SetParamValues("run_missing")
	if err := h.GetRunEvents(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrRunInProgress, http.StatusConflict},
		{domain.ErrMessageNotFound, http.StatusNotFound},
		{&domain.UnsupportedContentError{ContentType: "image_file"}, http.StatusUnprocessableEntity},
		{&domain.ServiceError{Op: "create run", StatusCode: 500}, http.StatusBadGateway},
		{&domain.RunFailedError{RunID: "run_1", Status: domain.RunStatusFailed}, http.StatusBadGateway},
		{&domain.TimeoutError{RunID: "run_1"}, http.StatusGatewayTimeout},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
