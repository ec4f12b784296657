// ABOUTME: HTTP API handlers for synchronous chat, SSE streaming, transcripts, and users
// ABOUTME: Streamed replies are delivered as named SSE events terminated by complete/error/timeout

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/riverfrot/chatline/internal/conversation"
	"github.com/riverfrot/chatline/internal/store"
	"github.com/riverfrot/chatline/internal/stream"
	"github.com/riverfrot/chatline/internal/user"
)

// ChatRequest is the JSON request body for POST /chatbot/chat.
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// ChatResponse is the JSON response for POST /chatbot/chat.
type ChatResponse struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	AgentType string `json:"agentType"`
}

// StreamingResponse is the JSON payload of one SSE/WebSocket chunk event.
type StreamingResponse struct {
	SessionID string `json:"sessionId"`
	Chunk     string `json:"chunk"`
	AgentType string `json:"agentType"`
	IsLast    bool   `json:"isLast"`
}

// MessageResponse is one transcript entry in JSON form.
type MessageResponse struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	AgentType string `json:"agentType,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// SessionMessagesResponse is the JSON response for the transcript endpoint.
type SessionMessagesResponse struct {
	SessionID string            `json:"sessionId"`
	Messages  []MessageResponse `json:"messages"`
}

// UserRequest is the JSON request body for POST /users/login.
type UserRequest struct {
	Nickname string `json:"nickname"`
}

// UserResponse is the JSON representation of a user.
type UserResponse struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	CreatedAt string `json:"createdAt"`
}

// handleChat handles POST /chatbot/chat: one synchronous exchange.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := g.exchange.Exchange(r.Context(), req.SessionID, req.Message)
	if err != nil {
		g.sendExchangeError(w, err)
		return
	}

	g.sendJSON(w, http.StatusOK, ChatResponse{
		SessionID: result.SessionID,
		Message:   result.Content,
		AgentType: result.Category,
	})
}

// handleChatStream handles GET /chatbot/chat/stream: a streamed exchange over SSE.
// Query parameters: sessionId and message (required), timeout (optional duration).
func (g *Gateway) handleChatStream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	message := r.URL.Query().Get("message")
	if sessionID == "" || message == "" {
		g.sendJSONError(w, http.StatusBadRequest, "sessionId and message query parameters are required")
		return
	}

	timeout := g.config.Stream.DefaultTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			g.sendJSONError(w, http.StatusBadRequest, "invalid timeout")
			return
		}
		timeout = parsed
	}

	// Check streaming support before opening (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s := g.dispatcher.Open(r.Context(), sessionID, message, timeout)
	defer s.Close()

	for ev := range s.Events() {
		g.writeSSEEvent(w, streamEventName(ev), streamEventPayload(sessionID, ev))
		flusher.Flush()
	}
}

// streamEventName maps a stream event to its SSE event name.
func streamEventName(ev stream.Event) string {
	switch ev.Kind {
	case stream.EventChunk:
		return "chunk"
	case stream.EventComplete:
		return "complete"
	case stream.EventTimeout:
		return "timeout"
	default:
		return "error"
	}
}

// streamEventPayload maps a stream event to its JSON payload.
func streamEventPayload(sessionID string, ev stream.Event) any {
	switch ev.Kind {
	case stream.EventChunk:
		return StreamingResponse{
			SessionID: sessionID,
			Chunk:     ev.Payload,
			AgentType: ev.Category,
			IsLast:    ev.Final,
		}
	case stream.EventComplete:
		return map[string]string{"sessionId": sessionID}
	default:
		return map[string]string{"sessionId": sessionID, "error": ev.Err.Error()}
	}
}

// handleSessionMessages handles GET /chatbot/sessions/{sessionID}/messages.
// It returns the full durable transcript, including messages already evicted
// from the live window.
func (g *Gateway) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := g.exchange.History(r.Context(), sessionID)
	if err != nil {
		g.logger.Error("failed to load transcript", "session_id", sessionID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := SessionMessagesResponse{
		SessionID: sessionID,
		Messages:  make([]MessageResponse, len(messages)),
	}
	for i, msg := range messages {
		resp.Messages[i] = MessageResponse{
			ID:        msg.ID,
			SessionID: msg.SessionID,
			Role:      msg.Role,
			Content:   msg.Content,
			AgentType: msg.Category,
			CreatedAt: msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
	}

	g.sendJSON(w, http.StatusOK, resp)
}

// handleHealth handles GET /chatbot/health.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUserLogin handles POST /users/login: nickname get-or-create.
func (g *Gateway) handleUserLogin(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := g.users.GetOrCreate(r.Context(), req.Nickname)
	if err != nil {
		if errors.Is(err, user.ErrEmptyNickname) || errors.Is(err, user.ErrNicknameTooLong) {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		g.logger.Error("user login failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, toUserResponse(u))
}

// handleGetUser handles GET /users/{userID}.
func (g *Gateway) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	u, err := g.users.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "user not found")
			return
		}
		g.logger.Error("user lookup failed", "user_id", userID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, toUserResponse(u))
}

func toUserResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Nickname:  u.Nickname,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// sendExchangeError maps exchange errors to HTTP status codes.
func (g *Gateway) sendExchangeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrEmptyMessage),
		errors.Is(err, conversation.ErrMessageTooLong),
		errors.Is(err, conversation.ErrUnknownCategory):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrResponderFailed):
		g.sendJSONError(w, http.StatusBadGateway, "response generation failed")
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, err.Error())
	default:
		g.logger.Error("exchange failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeSSEEvent writes a single named SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE payload", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

// sendJSON writes a JSON response with the given status code.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}
