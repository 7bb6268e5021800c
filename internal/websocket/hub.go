package websocket

import (
	"context"
	"log/slog"

	"pairchat/internal/domain"
	"pairchat/internal/observability"
)

// Subscriber is a live connection as seen by the hub
type Subscriber interface {
	ID() string
	// Deliver queues data without blocking and reports whether it was accepted
	Deliver(data []byte) bool
	Close()
}

type subscription struct {
	sub     Subscriber
	roomKey domain.RoomKey
	done    chan struct{}
}

type publication struct {
	roomKey domain.RoomKey
	name    string
	data    []byte
	exclude Subscriber
}

type membersQuery struct {
	roomKey domain.RoomKey
	reply   chan int
}

// Hub routes events to the subscribers of each room. All state is owned by
// the Run loop.
type Hub struct {
	// Room topic to subscribers
	rooms map[domain.RoomKey]map[Subscriber]struct{}

	// Registered subscribers and the rooms they joined
	subs map[Subscriber]map[domain.RoomKey]struct{}

	register       chan Subscriber
	unregister     chan Subscriber
	subscribe      chan subscription
	unsubscribe    chan subscription
	unsubscribeAll chan subscription
	publish        chan *publication
	members        chan membersQuery

	// Shutdown signal
	done chan struct{}
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		rooms:          make(map[domain.RoomKey]map[Subscriber]struct{}),
		subs:           make(map[Subscriber]map[domain.RoomKey]struct{}),
		register:       make(chan Subscriber),
		unregister:     make(chan Subscriber),
		subscribe:      make(chan subscription),
		unsubscribe:    make(chan subscription),
		unsubscribeAll: make(chan subscription),
		publish:        make(chan *publication, 256),
		members:        make(chan membersQuery),
		done:           make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case sub := <-h.register:
			if _, ok := h.subs[sub]; !ok {
				h.subs[sub] = make(map[domain.RoomKey]struct{})
				observability.WebSocketConnectionsActive.Inc()
				slog.Debug("subscriber registered", slog.String("conn_id", sub.ID()))
			}

		case sub := <-h.unregister:
			if h.forget(sub) {
				slog.Debug("subscriber unregistered", slog.String("conn_id", sub.ID()))
			}
			sub.Close()

		case s := <-h.subscribe:
			h.join(s.sub, s.roomKey)
			close(s.done)

		case s := <-h.unsubscribe:
			h.leave(s.sub, s.roomKey)
			close(s.done)

		case s := <-h.unsubscribeAll:
			for roomKey := range h.subs[s.sub] {
				h.leave(s.sub, roomKey)
			}
			close(s.done)

		case p := <-h.publish:
			h.deliver(p)

		case q := <-h.members:
			q.reply <- len(h.rooms[q.roomKey])
		}
	}
}

func (h *Hub) join(sub Subscriber, roomKey domain.RoomKey) {
	rooms, ok := h.subs[sub]
	if !ok {
		// Subscribing implies registration
		rooms = make(map[domain.RoomKey]struct{})
		h.subs[sub] = rooms
		observability.WebSocketConnectionsActive.Inc()
	}
	rooms[roomKey] = struct{}{}

	if h.rooms[roomKey] == nil {
		h.rooms[roomKey] = make(map[Subscriber]struct{})
	}
	h.rooms[roomKey][sub] = struct{}{}
}

func (h *Hub) leave(sub Subscriber, roomKey domain.RoomKey) {
	if rooms, ok := h.subs[sub]; ok {
		delete(rooms, roomKey)
	}
	if members, ok := h.rooms[roomKey]; ok {
		delete(members, sub)
		// Clean up empty room
		if len(members) == 0 {
			delete(h.rooms, roomKey)
		}
	}
}

// forget removes sub from every room and from the registry
func (h *Hub) forget(sub Subscriber) bool {
	rooms, ok := h.subs[sub]
	if !ok {
		return false
	}
	for roomKey := range rooms {
		h.leave(sub, roomKey)
	}
	delete(h.subs, sub)
	observability.WebSocketConnectionsActive.Dec()
	return true
}

func (h *Hub) deliver(p *publication) {
	for sub := range h.rooms[p.roomKey] {
		if p.exclude != nil && sub == p.exclude {
			continue
		}
		if sub.Deliver(p.data) {
			observability.WebSocketMessagesSent.WithLabelValues(p.name).Inc()
			continue
		}

		// Send buffer is full, drop the slow subscriber
		h.forget(sub)
		sub.Close()
		observability.WebSocketSubscribersDropped.Inc()
		slog.Warn("dropped slow subscriber",
			slog.String("conn_id", sub.ID()),
			slog.String("room_key", p.roomKey.String()))
	}
}

// shutdown performs graceful cleanup of all connections
func (h *Hub) shutdown() {
	close(h.done)

	for sub := range h.subs {
		h.forget(sub)
		sub.Close()
	}

	slog.Info("hub shutdown complete")
}

// Register makes sub known to the hub
func (h *Hub) Register(sub Subscriber) {
	select {
	case h.register <- sub:
	case <-h.done:
	}
}

// Unregister removes sub from every room and closes it
func (h *Hub) Unregister(sub Subscriber) {
	select {
	case h.unregister <- sub:
	case <-h.done:
		sub.Close()
	}
}

// Subscribe adds sub to the room. It returns once the subscription is in
// effect, so a later Publish from the same goroutine reaches sub.
func (h *Hub) Subscribe(sub Subscriber, roomKey domain.RoomKey) {
	h.roundTrip(h.subscribe, sub, roomKey)
}

// Unsubscribe removes sub from the room
func (h *Hub) Unsubscribe(sub Subscriber, roomKey domain.RoomKey) {
	h.roundTrip(h.unsubscribe, sub, roomKey)
}

// UnsubscribeAll removes sub from every room it joined
func (h *Hub) UnsubscribeAll(sub Subscriber) {
	h.roundTrip(h.unsubscribeAll, sub, "")
}

func (h *Hub) roundTrip(ch chan subscription, sub Subscriber, roomKey domain.RoomKey) {
	s := subscription{sub: sub, roomKey: roomKey, done: make(chan struct{})}
	select {
	case ch <- s:
	case <-h.done:
		return
	}
	select {
	case <-s.done:
	case <-h.done:
	}
}

// Publish sends ev to every subscriber of the room except exclude. Events
// published from one goroutine are delivered in publish order.
func (h *Hub) Publish(roomKey domain.RoomKey, ev Event, exclude Subscriber) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}

	select {
	case h.publish <- &publication{roomKey: roomKey, name: ev.Name, data: data, exclude: exclude}:
	case <-h.done:
	}
	return nil
}

// Members returns the number of live subscribers of the room
func (h *Hub) Members(roomKey domain.RoomKey) int {
	q := membersQuery{roomKey: roomKey, reply: make(chan int, 1)}
	select {
	case h.members <- q:
	case <-h.done:
		return 0
	}
	select {
	case n := <-q.reply:
		return n
	case <-h.done:
		return 0
	}
}
