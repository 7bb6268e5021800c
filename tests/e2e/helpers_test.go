//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestClient is one signed-in user talking to the server
type TestClient struct {
	*http.Client
	t         *testing.T
	userID    int64
	username  string
	email     string
	token     string
	csrfToken string
}

// NewTestClient inserts a user and a live session for it, standing in for the
// account service
func NewTestClient(t *testing.T, name string) *TestClient {
	t.Helper()

	suffix := uuid.NewString()[:8]
	tc := &TestClient{
		Client:    &http.Client{Timeout: 30 * time.Second},
		t:         t,
		username:  name + "_" + suffix,
		email:     fmt.Sprintf("%s_%s@example.com", name, suffix),
		token:     uuid.NewString(),
		csrfToken: uuid.NewString(),
	}

	ctx := context.Background()
	err := testDB.QueryRowContext(ctx,
		`INSERT INTO users (username, email) VALUES ($1, $2) RETURNING id`,
		tc.username, tc.email,
	).Scan(&tc.userID)
	require.NoError(t, err, "failed to insert user")

	_, err = testDB.ExecContext(ctx,
		`INSERT INTO sessions (user_id, token, csrf_token, expires_at) VALUES ($1, $2, $3, $4)`,
		tc.userID, tc.token, tc.csrfToken, time.Now().Add(time.Hour),
	)
	require.NoError(t, err, "failed to insert session")

	return tc
}

func (tc *TestClient) do(method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.AddCookie(&http.Cookie{Name: "session_id", Value: tc.token})
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-CSRF-Token", tc.csrfToken)
	}
	return tc.Do(req)
}

// decode reads a JSON body after checking the status code
func decode[T any](t *testing.T, resp *http.Response, wantStatus int) T {
	t.Helper()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, "unexpected status, body: %s", body)

	var out T
	require.NoError(t, json.Unmarshal(body, &out), "body: %s", body)
	return out
}

type PeerResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type PairingCreated struct {
	RoomKey string       `json:"room_key"`
	Peer    PeerResponse `json:"peer"`
}

type MessageResponse struct {
	Seq            int64  `json:"seq"`
	Content        string `json:"content"`
	Timestamp      int64  `json:"timestamp"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
}

type PairingEntry struct {
	PeerID       int64            `json:"peer_id"`
	PeerUsername string           `json:"peer_username"`
	RoomKey      string           `json:"room_key"`
	IsActive     bool             `json:"is_active"`
	LastMessage  *MessageResponse `json:"last_message"`
}

type PairingsResponse struct {
	Pairings []PairingEntry `json:"pairings"`
}

type MessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// PairWith opens a conversation with peer
func (tc *TestClient) PairWith(peer *TestClient) PairingCreated {
	tc.t.Helper()

	resp, err := tc.do(http.MethodPost, "/api/v1/pairings", map[string]string{"email": peer.email})
	require.NoError(tc.t, err)
	return decode[PairingCreated](tc.t, resp, http.StatusOK)
}

func (tc *TestClient) Pairings(active string) PairingsResponse {
	tc.t.Helper()

	path := "/api/v1/pairings"
	if active != "" {
		path += "?active=" + active
	}
	resp, err := tc.do(http.MethodGet, path, nil)
	require.NoError(tc.t, err)
	return decode[PairingsResponse](tc.t, resp, http.StatusOK)
}

func (tc *TestClient) History(roomKey string) MessagesResponse {
	tc.t.Helper()

	resp, err := tc.do(http.MethodGet, "/api/v1/rooms/"+roomKey+"/messages", nil)
	require.NoError(tc.t, err)
	return decode[MessagesResponse](tc.t, resp, http.StatusOK)
}

// WSEvent is one frame of the live channel
type WSEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSClient is a live connection with a background reader
type WSClient struct {
	t      *testing.T
	conn   *websocket.Conn
	mu     sync.Mutex
	events chan WSEvent
	owner  *TestClient
}

// Connect opens the live channel, authenticating with the token parameter
func (tc *TestClient) Connect() *WSClient {
	tc.t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(wsURL+"/ws?token="+tc.token, nil)
	require.NoError(tc.t, err, "failed to connect to WebSocket")

	wsc := &WSClient{
		t:      tc.t,
		conn:   conn,
		events: make(chan WSEvent, 256),
		owner:  tc,
	}
	go wsc.readLoop()
	tc.t.Cleanup(func() { conn.Close() })
	return wsc
}

func (wsc *WSClient) readLoop() {
	defer close(wsc.events)

	for {
		_, data, err := wsc.conn.ReadMessage()
		if err != nil {
			return
		}

		var ev WSEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			wsc.t.Logf("failed to unmarshal WebSocket frame: %v", err)
			continue
		}
		wsc.events <- ev
	}
}

func (wsc *WSClient) emit(event string, data any) {
	wsc.t.Helper()
	wsc.mu.Lock()
	defer wsc.mu.Unlock()

	require.NoError(wsc.t, wsc.conn.WriteJSON(map[string]any{"event": event, "data": data}))
}

func (wsc *WSClient) Join(roomKey string) {
	wsc.emit("join-room", map[string]any{"roomKey": roomKey})
}

func (wsc *WSClient) Send(roomKey, content string) {
	wsc.emit("send-message", map[string]any{
		"roomKey":        roomKey,
		"timestamp":      time.Now().Unix(),
		"content":        content,
		"senderId":       wsc.owner.userID,
		"senderUsername": wsc.owner.username,
	})
}

// WaitFor returns the first event with the given name, skipping others
func (wsc *WSClient) WaitFor(event string, timeout time.Duration) (json.RawMessage, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-wsc.events:
			if !ok {
				return nil, fmt.Errorf("connection closed while waiting for %s", event)
			}
			if ev.Event == event {
				return ev.Data, nil
			}
		case <-timer.C:
			return nil, fmt.Errorf("timeout waiting for %s", event)
		}
	}
}

// Expect fails unless the next matching event arrives in time and decodes
// into T
func Expect[T any](t *testing.T, wsc *WSClient, event string) T {
	t.Helper()

	data, err := wsc.WaitFor(event, 5*time.Second)
	require.NoError(t, err)

	var out T
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}
