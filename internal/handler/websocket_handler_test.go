package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairchat/internal/domain"
	"pairchat/internal/middleware"
	"pairchat/internal/service"
	"pairchat/internal/testutil"
	ws "pairchat/internal/websocket"
)

type liveFixture struct {
	hub      *ws.Hub
	messages *testutil.MockMessageRepository
	server   *httptest.Server
}

// newLiveFixture serves /ws behind the session middleware, backed by the
// real hub and chat session service
func newLiveFixture(t *testing.T, allowedOrigins []string) *liveFixture {
	t.Helper()

	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	messages := testutil.NewMockMessageRepository()
	sessions := testutil.NewMockSessionRepository(
		testutil.NewTestSession(3, "alice-token"),
		testutil.NewTestSession(7, "bob-token"),
	)
	chat := service.NewChatSessionService(hub, messages, service.NoopPublisher(), time.Second)
	h := NewWebSocketHandler(hub, chat, allowedOrigins)

	server := httptest.NewServer(middleware.Auth(sessions)(http.HandlerFunc(h.HandleConnection)))
	t.Cleanup(server.Close)

	return &liveFixture{hub: hub, messages: messages, server: server}
}

func (f *liveFixture) dial(t *testing.T, token string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func send(t *testing.T, conn *websocket.Conn, name string, data any) {
	t.Helper()

	raw, err := json.Marshal(map[string]any{"event": name, "data": data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func receive(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	return env.Event, env.Data
}

func TestWebSocketHandler_Conversation(t *testing.T) {
	f := newLiveFixture(t, []string{"http://localhost:3000"})

	alice, _, err := f.dial(t, "alice-token", nil)
	require.NoError(t, err)
	bob, _, err := f.dial(t, "bob-token", nil)
	require.NoError(t, err)

	send(t, alice, ws.EventJoinRoom, map[string]any{"roomKey": "3_7"})
	name, data := receive(t, alice)
	assert.Equal(t, ws.EventRoomOnline, name)
	assert.Equal(t, "3_7 is now online.", data["message"])

	send(t, bob, ws.EventJoinRoom, map[string]any{"roomKey": "3_7"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		name, _ := receive(t, conn)
		assert.Equal(t, ws.EventRoomOnline, name)
	}

	send(t, alice, ws.EventSendMessage, map[string]any{
		"roomKey":        "3_7",
		"timestamp":      1000,
		"content":        "hi bob",
		"senderId":       3,
		"senderUsername": "alice",
	})

	name, data = receive(t, bob)
	assert.Equal(t, ws.EventNewMessage, name)
	assert.Equal(t, "hi bob", data["content"])
	assert.Equal(t, float64(1), data["seq"])
	assert.Equal(t, float64(3), data["senderId"])

	history, err := f.messages.ReadAll(context.Background(), "3_7")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.UserID(3), history[0].SenderID)
}

func TestWebSocketHandler_RejectsUnauthenticated(t *testing.T) {
	f := newLiveFixture(t, nil)

	_, resp, err := f.dial(t, "forged", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketHandler_OriginCheck(t *testing.T) {
	f := newLiveFixture(t, []string{"http://localhost:3000"})

	_, resp, err := f.dial(t, "alice-token", http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, _, err = f.dial(t, "alice-token", http.Header{"Origin": {"http://localhost:3000"}})
	assert.NoError(t, err)
}

func TestWebSocketHandler_RequiresUser(t *testing.T) {
	h := NewWebSocketHandler(ws.NewHub(), nil, nil)

	w := httptest.NewRecorder()
	h.HandleConnection(w, httptest.NewRequest(http.MethodGet, "/ws", nil))

	testutil.AssertJSONError(t, w, http.StatusUnauthorized, "Not authenticated")
}
