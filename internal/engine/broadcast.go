// Package engine wires the kiosk's peripheral links, machine state store,
// and persistence layer into the transaction lifecycle: the bill
// acceptance pipeline, the dispense orchestrator, the transaction state
// machine, and the top-level transaction orchestrator that enforces at
// most one active transaction.
package engine

import (
	"sync"
	"time"
)

// WSEvent is one outbound broadcast, mirroring the external WebSocket
// envelope: {type, payload, timestamp}.
type WSEvent struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcaster fans WSEvent values out to subscribers. The engine depends
// only on this interface, never on a concrete transport, so the API
// layer's WebSocket hub can be swapped or stubbed in tests.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Hub is an in-process Broadcaster: a simple channel-fanout pub/sub with
// no global state, constructed once per process and passed explicitly to
// every subscriber.
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan WSEvent
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan WSEvent)}
}

// Subscribe registers a new listener and returns its channel along with
// an unsubscribe function. The channel is buffered; a slow subscriber
// drops events rather than blocking the broadcaster.
func (h *Hub) Subscribe(buffer int) (<-chan WSEvent, func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	ch := make(chan WSEvent, buffer)
	h.subs[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Broadcast implements Broadcaster.
func (h *Hub) Broadcast(event string, payload any) {
	evt := WSEvent{Type: event, Payload: payload, Timestamp: time.Now()}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
