// ABOUTME: WebSocket transport tests for streamed exchanges
// ABOUTME: Dials a live test server and verifies chunk and terminal frames

package gateway

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chatbot/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandleChatWS(t *testing.T) {
	srv := httptest.NewServer(newTestGateway(t).Router())
	defer srv.Close()

	conn := dialWS(t, srv)
	require.NoError(t, conn.WriteJSON(WSRequest{SessionID: "sess-ws", Message: "hello"}))

	var chunks []string
	var terminal WSEvent
	for {
		var ev WSEvent
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type != "chunk" {
			terminal = ev
			break
		}
		assert.Equal(t, "sess-ws", ev.SessionID)
		chunks = append(chunks, ev.Chunk)
	}

	assert.Equal(t, "complete", terminal.Type)
	assert.Equal(t, "Hello! How can I help you today?", strings.Join(chunks, " "))
}

func TestHandleChatWS_MissingFields(t *testing.T) {
	srv := httptest.NewServer(newTestGateway(t).Router())
	defer srv.Close()

	conn := dialWS(t, srv)
	require.NoError(t, conn.WriteJSON(WSRequest{Message: "hello"}))

	var ev WSEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "error", ev.Type)
}

func TestHandleChatWS_InvalidTimeout(t *testing.T) {
	srv := httptest.NewServer(newTestGateway(t).Router())
	defer srv.Close()

	conn := dialWS(t, srv)
	require.NoError(t, conn.WriteJSON(WSRequest{SessionID: "sess-ws", Message: "hi", Timeout: "soon"}))

	var ev WSEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "error", ev.Type)
}
