package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"pairchat/internal/websocket"
)

// testConn is an in-memory live connection
type testConn struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func newTestConn(id string) *testConn {
	return &testConn{id: id}
}

func (c *testConn) ID() string { return c.id }

func (c *testConn) Deliver(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.frames = append(c.frames, data)
	return true
}

func (c *testConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

type receivedEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// received returns the decoded frames with the given event name
func (c *testConn) received(name string) []receivedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []receivedEvent
	for _, f := range c.frames {
		var ev receivedEvent
		if err := json.Unmarshal(f, &ev); err == nil && ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func (c *testConn) newMessages(t *testing.T) []websocket.NewMessagePayload {
	t.Helper()

	var out []websocket.NewMessagePayload
	for _, ev := range c.received(websocket.EventNewMessage) {
		var p websocket.NewMessagePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			t.Fatalf("failed to decode new-message: %v", err)
		}
		out = append(out, p)
	}
	return out
}

func startHub(t *testing.T) *websocket.Hub {
	t.Helper()

	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop in time")
		}
	})
	return hub
}
