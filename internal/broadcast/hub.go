package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/iliyamo/cinema-seat-access/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Hub is the WebSocket side of the broadcaster.  There is no per-client
// filtering: every published event goes to every client.  Each client has
// its own bounded queue; when it is full the event is dropped for that
// client only.
type Hub struct {
	log        *logger.Logger
	upgrader   websocket.Upgrader
	sendBuffer int

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// inbound is the shape of messages clients send to the hub.
type inbound struct {
	Type   string `json:"type"`
	SeatID string `json:"seatId"`
}

// NewHub builds a hub.  sendBuffer bounds the per-client queue; values
// below 1 fall back to 64.
func NewHub(log *logger.Logger, sendBuffer int) *Hub {
	if sendBuffer < 1 {
		sendBuffer = 64
	}
	return &Hub{
		log:        log.Component("broadcast"),
		sendBuffer: sendBuffer,
		clients:    make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Displays are served from other origins (kiosk pages, the simulator).
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish implements Publisher.  It never blocks on a slow client.
func (h *Hub) Publish(_ context.Context, ev Event) {
	h.broadcast(ev, nil)
}

func (h *Hub) broadcast(ev Event, except *client) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("marshal event failed", "type", ev.Type, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c == except {
			continue
		}
		h.enqueue(c, payload, ev.Type)
	}
}

// enqueue must be called with h.mu held (read or write).
func (h *Hub) enqueue(c *client, payload []byte, typ string) {
	select {
	case c.send <- payload:
	default:
		h.log.Warn("client queue full, dropping event", "client", c.id, "type", typ)
	}
}

// ServeWS upgrades the request and serves the client until it
// disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, h.sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	hello := NewEvent(Connected, "")
	hello.Data = map[string]any{"clientId": c.id}
	if payload, err := json.Marshal(hello); err == nil {
		h.enqueue(c, payload, hello.Type)
	}
	h.mu.Unlock()
	h.log.Info("client connected", "client", c.id, "clients", total)

	joined := NewEvent(ClientJoined, "")
	joined.Data = map[string]any{"clientId": c.id, "clients": total}
	h.broadcast(joined, c)

	go h.writePump(c)
	h.readPump(c)

	h.remove(c)
	left := NewEvent(ClientLeft, "")
	left.Data = map[string]any{"clientId": c.id, "clients": h.Clients()}
	h.broadcast(left, nil)
	h.log.Info("client disconnected", "client", c.id)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("read failed", "client", c.id, "error", err)
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debug("ignoring malformed client message", "client", c.id)
			continue
		}
		switch msg.Type {
		case "qrScanned":
			ev := NewEvent(QRScanned, msg.SeatID)
			ev.Data = map[string]any{"clientId": c.id}
			h.broadcast(ev, c)
		default:
			h.log.Debug("ignoring client message", "client", c.id, "type", msg.Type)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
