package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 8
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans iteration reports out to websocket subscribers. A client whose
// buffer is full is dropped rather than allowed to stall the loop.
type Hub struct {
	lock    sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.lock.Lock()
	h.clients[c] = struct{}{}
	h.lock.Unlock()

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

// Broadcast queues msg for every client without blocking
func (h *Hub) Broadcast(msg []byte) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropLocked(c)
		}
	}
}

// Close disconnects every client
func (h *Hub) Close() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *Hub) drop(c *client) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.drop(c)
			// drain so the channel close is observed
			for range c.send {
			}
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump discards inbound frames and notices disconnects
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			h.drop(c)
			return
		}
	}
}
