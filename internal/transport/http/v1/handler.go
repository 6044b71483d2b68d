// Package v1 provides the public HTTP handlers of the care assistant.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/careassist/internal/service"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	logger  *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the public routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Conversations
	e.POST("/v1/conversations", h.CreateConversation)
	e.POST("/v1/conversations/:session_id/messages", h.SendMessage)
	e.GET("/v1/conversations/:session_id/messages", h.GetConversationMessages)
	e.GET("/v1/conversations/:session_id/runs", h.ListConversationRuns)

	// Runs
	e.GET("/v1/runs/:run_id", h.GetRun)
	e.GET("/v1/runs/:run_id/events", h.GetRunEvents)

	e.GET("/health", h.Health)
}

// Health returns health status. Credentials problems degrade readiness but
// do not make the process unhealthy.
func (h *Handler) Health(c echo.Context) error {
	resp := map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"ready":   true,
	}
	if err := h.service.Ready(); err != nil {
		resp["ready"] = false
		resp["reason"] = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}
