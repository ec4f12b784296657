// ABOUTME: WebSocket transport for streamed exchanges
// ABOUTME: One request frame per connection; chunk and terminal events are written as JSON frames

package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin policy is enforced by the CORS middleware configuration; the
	// handshake itself accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSRequest is the single JSON frame a client sends after connecting.
type WSRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Timeout   string `json:"timeout,omitempty"`
}

// WSEvent is one JSON frame written to the client during a stream.
type WSEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Chunk     string `json:"chunk,omitempty"`
	AgentType string `json:"agentType,omitempty"`
	IsLast    bool   `json:"isLast,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleChatWS handles GET /chatbot/chat/ws: a streamed exchange over a
// WebSocket. The client sends one WSRequest frame, then receives chunk
// frames followed by exactly one terminal frame (complete, error, or
// timeout), after which the server closes the connection.
func (g *Gateway) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var req WSRequest
	if err := conn.ReadJSON(&req); err != nil {
		g.logger.Debug("websocket request frame unreadable", "error", err)
		return
	}
	if req.SessionID == "" || req.Message == "" {
		g.writeWSEvent(conn, WSEvent{Type: "error", SessionID: req.SessionID, Error: "sessionId and message are required"})
		return
	}

	timeout := g.config.Stream.DefaultTimeout
	if req.Timeout != "" {
		parsed, err := time.ParseDuration(req.Timeout)
		if err != nil || parsed <= 0 {
			g.writeWSEvent(conn, WSEvent{Type: "error", SessionID: req.SessionID, Error: "invalid timeout"})
			return
		}
		timeout = parsed
	}

	s := g.dispatcher.Open(r.Context(), req.SessionID, req.Message, timeout)
	defer s.Close()

	// Drain the read side so client close frames are noticed mid-stream.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.Close()
				return
			}
		}
	}()

	for ev := range s.Events() {
		wsEv := WSEvent{Type: streamEventName(ev), SessionID: req.SessionID}
		switch {
		case ev.Err != nil:
			wsEv.Error = ev.Err.Error()
		case wsEv.Type == "chunk":
			wsEv.Chunk = ev.Payload
			wsEv.AgentType = ev.Category
			wsEv.IsLast = ev.Final
		}
		if err := g.writeWSEvent(conn, wsEv); err != nil {
			return
		}
	}

	deadline := time.Now().Add(wsWriteTimeout)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

func (g *Gateway) writeWSEvent(conn *websocket.Conn, ev WSEvent) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	payload, err := json.Marshal(ev)
	if err != nil {
		g.logger.Error("failed to marshal websocket event", "error", err)
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}
