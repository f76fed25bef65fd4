// Package broadcast fans out state-change and context events to every
// connected presentation client over websockets, and turns inbound
// control messages into orchestrator triggers. It also exposes the REST
// control surface used by non-persistent callers.
package broadcast

import (
	"context"

	"go.uber.org/zap"

	"github.com/hirawatt/sahayak/internal/protocol"
)

// SubmitFunc hands a trigger to the orchestrator. Returns false when the
// trigger queue is full.
type SubmitFunc func(protocol.Trigger) bool

// Hub owns the live set of client connections. All set mutation happens
// on the Run goroutine; a slow or dead client is dropped without
// affecting delivery to its peers.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	events     chan protocol.Envelope
	clients    map[*Client]struct{}
	submit     SubmitFunc
	log        *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger, submit SubmitFunc) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan protocol.Envelope, 64),
		clients:    make(map[*Client]struct{}),
		submit:     submit,
		log:        log,
	}
}

// Publish queues an event for delivery to every subscribed client.
// Never blocks the caller; when the hub is saturated the event is
// dropped and logged rather than stalling the orchestrator.
func (h *Hub) Publish(env protocol.Envelope) {
	select {
	case h.events <- env:
	default:
		h.log.Warnw("event queue full, dropping broadcast")
	}
}

// Run manages the connection set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				c.close()
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.log.Infow("client connected", "connection_id", c.ID, "clients", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.close()
				h.log.Infow("client disconnected", "connection_id", c.ID, "clients", len(h.clients))
			}
		case env := <-h.events:
			for c := range h.clients {
				if !c.subscribed {
					continue
				}
				if !c.enqueue(env) {
					// Per-connection failure is isolated: drop only
					// this client.
					delete(h.clients, c)
					c.close()
					h.log.Warnw("client too slow, dropped", "connection_id", c.ID)
				}
			}
		}
	}
}
