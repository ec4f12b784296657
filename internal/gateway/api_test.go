// ABOUTME: HTTP handler tests for the gateway API
// ABOUTME: Exercises the chat, SSE streaming, transcript, user, and health endpoints

package gateway

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverfrot/chatline/internal/config"
	"github.com/riverfrot/chatline/internal/conversation"
	"github.com/riverfrot/chatline/internal/responder"
	"github.com/riverfrot/chatline/internal/store"
	"github.com/riverfrot/chatline/internal/stream"
	"github.com/riverfrot/chatline/internal/user"
)

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Stream: config.StreamConfig{
			ChunkDelay:     0,
			DefaultTimeout: 5 * time.Second,
		},
	}

	st := store.NewMockStore()
	t.Cleanup(func() { st.Close() })

	manager := conversation.NewManager(st, nil)
	resp := responder.Default()
	exchange := conversation.NewService(manager, resp, nil)
	dispatcher := stream.New(manager, resp, 0, nil)
	users := user.NewService(st, nil)

	return New(cfg, exchange, dispatcher, users, nil)
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHandleChat(t *testing.T) {
	router := newTestGateway(t).Router()

	rec := postJSON(t, router, "/chatbot/chat", ChatRequest{Message: "hello there"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[ChatResponse](t, rec)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "Hello! How can I help you today?", resp.Message)
	assert.Equal(t, store.CategoryGeneral, resp.AgentType)
}

func TestHandleChat_ReusesSession(t *testing.T) {
	router := newTestGateway(t).Router()

	first := decodeBody[ChatResponse](t, postJSON(t, router, "/chatbot/chat", ChatRequest{Message: "hello"}))
	rec := postJSON(t, router, "/chatbot/chat", ChatRequest{SessionID: first.SessionID, Message: "tell me about code"})
	require.Equal(t, http.StatusOK, rec.Code)

	second := decodeBody[ChatResponse](t, rec)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, store.CategoryCode, second.AgentType)
}

func TestHandleChat_EmptyMessage(t *testing.T) {
	router := newTestGateway(t).Router()

	rec := postJSON(t, router, "/chatbot/chat", ChatRequest{Message: "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody[map[string]string](t, rec)
	assert.Contains(t, body["error"], "empty")
}

func TestHandleChat_InvalidBody(t *testing.T) {
	router := newTestGateway(t).Router()

	req := httptest.NewRequest(http.MethodPost, "/chatbot/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// sseEvent is one parsed event from an SSE response body.
type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if cur.name != "" {
				events = append(events, cur)
				cur = sseEvent{}
			}
		}
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestHandleChatStream(t *testing.T) {
	srv := httptest.NewServer(newTestGateway(t).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/chatbot/chat/stream?sessionId=sess-1&message=hello")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	events := parseSSE(t, buf.String())
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, "complete", last.name)

	var chunks []string
	for _, ev := range events[:len(events)-1] {
		require.Equal(t, "chunk", ev.name)
		var chunk StreamingResponse
		require.NoError(t, json.Unmarshal([]byte(ev.data), &chunk))
		assert.Equal(t, "sess-1", chunk.SessionID)
		chunks = append(chunks, chunk.Chunk)
	}
	assert.Equal(t, "Hello! How can I help you today?", strings.Join(chunks, " "))

	// The final chunk carries the isLast marker
	var final StreamingResponse
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-2].data), &final))
	assert.True(t, final.IsLast)
}

func TestHandleChatStream_MissingParams(t *testing.T) {
	router := newTestGateway(t).Router()

	req := httptest.NewRequest(http.MethodGet, "/chatbot/chat/stream?sessionId=sess-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatStream_InvalidTimeout(t *testing.T) {
	router := newTestGateway(t).Router()

	req := httptest.NewRequest(http.MethodGet, "/chatbot/chat/stream?sessionId=sess-1&message=hi&timeout=soon", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatStream_EmptyMessageEmitsError(t *testing.T) {
	srv := httptest.NewServer(newTestGateway(t).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/chatbot/chat/stream?sessionId=sess-1&message=%20%20")
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	events := parseSSE(t, buf.String())
	require.Len(t, events, 1)
	assert.Equal(t, "error", events[0].name)
}

func TestHandleSessionMessages(t *testing.T) {
	router := newTestGateway(t).Router()

	chat := decodeBody[ChatResponse](t, postJSON(t, router, "/chatbot/chat", ChatRequest{Message: "hello"}))

	req := httptest.NewRequest(http.MethodGet, "/chatbot/sessions/"+chat.SessionID+"/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[SessionMessagesResponse](t, rec)
	assert.Equal(t, chat.SessionID, resp.SessionID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, store.RoleUser, resp.Messages[0].Role)
	assert.Equal(t, "hello", resp.Messages[0].Content)
	assert.Equal(t, store.RoleAssistant, resp.Messages[1].Role)
}

func TestHandleSessionMessages_UnknownSession(t *testing.T) {
	router := newTestGateway(t).Router()

	req := httptest.NewRequest(http.MethodGet, "/chatbot/sessions/no-such/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// An unknown session has an empty transcript, not an error
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[SessionMessagesResponse](t, rec)
	assert.Empty(t, resp.Messages)
}

func TestHandleHealth(t *testing.T) {
	router := newTestGateway(t).Router()

	req := httptest.NewRequest(http.MethodGet, "/chatbot/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestHandleUserLogin(t *testing.T) {
	router := newTestGateway(t).Router()

	rec := postJSON(t, router, "/users/login", UserRequest{Nickname: "mina"})
	require.Equal(t, http.StatusOK, rec.Code)

	first := decodeBody[UserResponse](t, rec)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "mina", first.Nickname)

	// Same nickname logs into the same account
	again := decodeBody[UserResponse](t, postJSON(t, router, "/users/login", UserRequest{Nickname: "mina"}))
	assert.Equal(t, first.ID, again.ID)
}

func TestHandleUserLogin_Validation(t *testing.T) {
	router := newTestGateway(t).Router()

	rec := postJSON(t, router, "/users/login", UserRequest{Nickname: "   "})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, router, "/users/login", UserRequest{Nickname: strings.Repeat("x", 51)})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetUser(t *testing.T) {
	router := newTestGateway(t).Router()

	created := decodeBody[UserResponse](t, postJSON(t, router, "/users/login", UserRequest{Nickname: "mina"}))

	req := httptest.NewRequest(http.MethodGet, "/users/"+created.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	fetched := decodeBody[UserResponse](t, rec)
	assert.Equal(t, created.ID, fetched.ID)
	assert.Equal(t, "mina", fetched.Nickname)
}

func TestHandleGetUser_NotFound(t *testing.T) {
	router := newTestGateway(t).Router()

	req := httptest.NewRequest(http.MethodGet, "/users/no-such-user", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	g := newTestGateway(t)
	g.config.CORS.AllowedOrigins = []string{"https://app.example.com"}
	router := g.Router()

	req := httptest.NewRequest(http.MethodOptions, "/chatbot/chat", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSDisallowedOrigin(t *testing.T) {
	g := newTestGateway(t)
	g.config.CORS.AllowedOrigins = []string{"https://app.example.com"}
	router := g.Router()

	req := httptest.NewRequest(http.MethodGet, "/chatbot/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
