// Package ws streams run events of one conversation over a websocket and
// accepts user messages on the same connection.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/careassist/internal/assistant"
	"github.com/xiaot623/careassist/internal/domain"
	"github.com/xiaot623/careassist/internal/hub"
	"github.com/xiaot623/careassist/internal/service"
)

const (
	writeTimeout   = 10 * time.Second
	readTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 64 * 1024
)

// Client message types.
const (
	TypeUserMessage = "user_message"
	TypeError       = "error"
)

// ClientMessage is a frame sent by the client.
type ClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ErrorMessage is sent to a single connection when its request failed.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server handles WebSocket connections.
type Server struct {
	hub      *hub.Hub
	service  *service.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(h *hub.Hub, svc *service.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		hub:     h,
		service: svc,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RegisterRoutes registers the websocket route with the echo server.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/v1/conversations/:session_id/ws", s.HandleWebSocket)
}

// HandleWebSocket upgrades the request and binds the connection to a session.
func (s *Server) HandleWebSocket(c echo.Context) error {
	sessionID := c.Param("session_id")
	if _, err := s.service.GetSession(c.Request().Context(), sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error(), "code": service.ErrorCode(err)})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return err
	}
	ws.SetReadLimit(maxMessageSize)

	conn := s.hub.NewConnection(ws, sessionID)
	s.hub.Register(conn)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads client frames until the connection fails.
func (s *Server) readPump(conn *hub.Connection) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.Conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read failed", zap.String("conn_id", conn.ID), zap.Error(err))
			}
			return
		}
		s.handleMessage(ctx, conn, data)
	}
}

// writePump forwards hub messages and keeps the connection alive with pings.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("websocket write failed", zap.String("conn_id", conn.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches a client frame. User messages run in their own
// goroutine so the read loop keeps answering pongs while the run is polled.
// The outcome of a created run reaches the client through the hub as
// run_done or run_failed; only failures before a run exists are sent as an
// error frame, so every user message gets exactly one final frame.
func (s *Server) handleMessage(ctx context.Context, conn *hub.Connection, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "invalid_message", "invalid JSON message")
		return
	}

	switch msg.Type {
	case TypeUserMessage:
		go func() {
			_, err := s.service.SendMessage(ctx, conn.SessionID, msg.Content)
			if err != nil && !assistant.RunFailureEmitted(err) {
				s.sendError(conn, service.ErrorCode(err), err.Error())
			}
		}()
	default:
		s.sendError(conn, "invalid_message", "unknown message type: "+msg.Type)
	}
}

// sendError writes directly to the connection; the hub may already have
// closed its send channel.
func (s *Server) sendError(conn *hub.Connection, code, message string) {
	data, err := json.Marshal(ErrorMessage{Type: TypeError, Code: code, Message: message})
	if err != nil {
		return
	}
	conn.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("failed to send error", zap.String("conn_id", conn.ID), zap.Error(err))
	}
}
