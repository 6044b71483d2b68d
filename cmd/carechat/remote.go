package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/careassist/internal/domain"
	"github.com/xiaot623/careassist/internal/transport/ws"
)

// ServerClient chats through a running careassist server: it opens a
// conversation over HTTP and exchanges messages on the websocket stream.
type ServerClient struct {
	SessionID string
	conn      *websocket.Conn
}

type frame struct {
	Type    string          `json:"type"`
	RunID   string          `json:"run_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
}

// DialServer creates a conversation on the server and connects to its stream.
func DialServer(ctx context.Context, baseURL string) (*ServerClient, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server address: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String()+"/v1/conversations", bytes.NewReader([]byte("{}")))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var body struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		return nil, fmt.Errorf("create conversation: server returned %d: %s", resp.StatusCode, body.Error)
	}
	var session domain.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}

	wsURL := *base
	wsURL.Scheme = "ws"
	if base.Scheme == "https" {
		wsURL.Scheme = "wss"
	}
	wsURL.Path = base.Path + "/v1/conversations/" + session.SessionID + "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &ServerClient{SessionID: session.SessionID, conn: conn}, nil
}

// Close closes the stream.
func (c *ServerClient) Close() error {
	return c.conn.Close()
}

// Send posts a user message on the stream and reads frames until the run
// it started resolves. Final frames of other runs are skipped.
func (c *ServerClient) Send(ctx context.Context, text string) (string, error) {
	if err := c.conn.WriteJSON(ws.ClientMessage{Type: ws.TypeUserMessage, Content: text}); err != nil {
		return "", fmt.Errorf("write message: %w", err)
	}

	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	runID := ""
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("read: %w", err)
		}

		switch f.Type {
		case ws.TypeError:
			if runID == "" {
				return "", fmt.Errorf("%s: %s", f.Code, f.Message)
			}
		case string(domain.EventTypeRunCreated):
			if runID == "" {
				runID = f.RunID
			}
		case string(domain.EventTypeRunStatus):
			if verbose && f.RunID == runID {
				var p domain.RunStatusPayload
				if json.Unmarshal(f.Payload, &p) == nil {
					fmt.Println(statusStyle.Render(fmt.Sprintf("poll %d: %s", p.Poll, p.Status)))
				}
			}
		case string(domain.EventTypeRunDone):
			if runID == "" || f.RunID != runID {
				continue
			}
			var p domain.RunDonePayload
			if err := json.Unmarshal(f.Payload, &p); err != nil {
				return "", fmt.Errorf("decode reply: %w", err)
			}
			return p.Reply, nil
		case string(domain.EventTypeRunFailed):
			if runID == "" || f.RunID != runID {
				continue
			}
			var p domain.RunFailedPayload
			if err := json.Unmarshal(f.Payload, &p); err != nil {
				return "", errors.New("run failed")
			}
			return "", fmt.Errorf("%s: %s", p.Code, p.Message)
		}
	}
}
