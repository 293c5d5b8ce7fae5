// Package hub fans decision events out to connected dashboard subscribers.
// Delivery is best-effort: a subscriber that cannot keep up is skipped
// without blocking the publisher or affecting other subscribers, and a late
// subscriber sees only events published after it joins.
package hub

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ecovive/leakwatch/internal/model"
)

// sendBuffer is the per-subscriber queue depth before messages are dropped.
const sendBuffer = 64

// writeWait bounds a single write to a subscriber connection.
const writeWait = 10 * time.Second

// Hub is the broadcast channel: a registry of subscriber connections with a
// non-blocking send-or-skip publish primitive.
type Hub struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	dropped atomic.Int64
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Publish serializes the message once and enqueues it to every subscriber.
// Subscribers with a full queue are skipped; the message is counted as
// dropped for them.
func (h *Hub) Publish(msg model.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hub: marshal %s message: %v\n", msg.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.send <- data:
		default:
			count := h.dropped.Add(1)
			if count == 1 || count%100 == 0 {
				fmt.Fprintf(os.Stderr, "hub: dropped message for slow subscriber (total dropped=%d)\n", count)
			}
		}
	}
}

// Register adds a subscriber connection and starts its pumps. The hub owns
// the connection from here on and closes it when the peer goes away.
func (h *Hub) Register(conn *websocket.Conn) {
	s := &subscriber{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	go h.writePump(s)
	go h.readPump(s)
}

// SubscriberCount returns the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// DroppedCount returns the total messages dropped for slow subscribers.
func (h *Hub) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		h.unregister(s)
	}
}

func (h *Hub) unregister(s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	s.once.Do(func() {
		close(s.send)
		s.conn.Close()
	})
}

// writePump drains the subscriber queue onto its connection. A write error
// unregisters the subscriber.
func (h *Hub) writePump(s *subscriber) {
	for data := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.unregister(s)
			return
		}
	}
}

// readPump discards inbound frames and detects the peer closing.
func (h *Hub) readPump(s *subscriber) {
	s.conn.SetReadLimit(1 << 20)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			h.unregister(s)
			return
		}
	}
}
