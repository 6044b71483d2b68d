package v1

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// CreateConversationRequest is the body of POST /v1/conversations.
type CreateConversationRequest struct {
	UserID   string          `json:"user_id"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// SendMessageRequest is the body of POST /v1/conversations/:session_id/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// CreateConversation opens a new conversation.
// POST /v1/conversations
func (h *Handler) CreateConversation(c echo.Context) error {
	var req CreateConversationRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	session, err := h.service.CreateConversation(c.Request().Context(), req.UserID, req.Metadata)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(http.StatusCreated, session)
}

// SendMessage submits a user message and waits for the assistant reply.
// POST /v1/conversations/:session_id/messages
func (h *Handler) SendMessage(c echo.Context) error {
	sessionID := c.Param("session_id")
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.service.SendMessage(c.Request().Context(), sessionID, req.Content)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(http.StatusOK, res)
}

// GetConversationMessages retrieves the locally recorded messages of a conversation.
// GET /v1/conversations/:session_id/messages
func (h *Handler) GetConversationMessages(c echo.Context) error {
	sessionID := c.Param("session_id")
	limit := queryInt(c, "limit", 50)
	before := c.QueryParam("before")

	messages, err := h.service.GetMessages(c.Request().Context(), sessionID, limit, before)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
		"has_more": limit > 0 && len(messages) == limit,
	})
}

// ListConversationRuns lists the runs of a conversation, newest first.
// GET /v1/conversations/:session_id/runs
func (h *Handler) ListConversationRuns(c echo.Context) error {
	sessionID := c.Param("session_id")
	limit := queryInt(c, "limit", 20)

	runs, err := h.service.ListRuns(c.Request().Context(), sessionID, limit)
	if err != nil {
		return h.writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs": runs,
	})
}

func queryInt(c echo.Context, name string, def int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
