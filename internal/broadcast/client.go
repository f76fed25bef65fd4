package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/hirawatt/sahayak/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// replyWait bounds how long a control message waits for its
	// acknowledgement before the client gets a timeout envelope.
	replyWait      = 30 * time.Second
	maxMessageSize = 4 * 1024
	sendBuffer     = 16
)

// Client is one presentation-client connection, owned by the hub.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan protocol.Envelope
	// done signals shutdown. send is never closed: acknowledgement
	// relays and the read pump may enqueue at any time relative to the
	// hub dropping the client, and a send into a live buffered channel
	// is safe where a send into a closed one is not.
	done       chan struct{}
	subscribed bool
	closeOnce  sync.Once
	log        *zap.SugaredLogger
}

func newClient(hub *Hub, conn *websocket.Conn, log *zap.SugaredLogger) *Client {
	id := ulid.Make().String()
	return &Client{
		ID:         id,
		hub:        hub,
		conn:       conn,
		send:       make(chan protocol.Envelope, sendBuffer),
		done:       make(chan struct{}),
		subscribed: true,
		log:        log.With("connection_id", id),
	}
}

// enqueue attempts a non-blocking hand-off to the write pump. Returns
// false when the client is closed or its buffer is full.
func (c *Client) enqueue(env protocol.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// writePump serializes all writes to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				c.log.Debugw("write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump parses inbound control messages and forwards them as
// triggers. Malformed input answers with an error envelope and keeps the
// connection open.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debugw("read failed", "error", err)
			}
			return
		}

		var msg protocol.ControlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.enqueue(protocol.Envelope{Success: false, Message: "invalid JSON: " + err.Error()})
			continue
		}
		c.handleControl(msg)
	}
}

func (c *Client) handleControl(msg protocol.ControlMessage) {
	if msg.Type != protocol.ControlOverlayAction {
		c.enqueue(protocol.Envelope{Success: false, Message: "unknown message type: " + msg.Type})
		return
	}
	overlayID, ok := protocol.OverlayForAction(msg.Action)
	if !ok {
		c.enqueue(protocol.Envelope{Success: false, Message: "unknown action: " + string(msg.Action)})
		return
	}

	trigger := protocol.Trigger{
		Overlay: overlayID,
		Op:      protocol.OpToggle,
		Origin:  protocol.OriginClient,
		Reply:   make(chan protocol.Envelope, 1),
	}
	if !c.hub.submit(trigger) {
		c.enqueue(protocol.Envelope{Success: false, Message: "busy, please retry"})
		return
	}

	// The acknowledgement arrives after the trigger settles; relay it
	// without holding up the read loop.
	go func() {
		select {
		case env := <-trigger.Reply:
			c.enqueue(env)
		case <-time.After(replyWait):
			c.enqueue(protocol.Envelope{Success: false, Message: "request timed out"})
		}
	}()
}
