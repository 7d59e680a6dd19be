package egress

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/deepuanant/tickrelay/internal/metrics"
)

const (
	writeTimeout   = 5 * time.Second
	clientSendSize = 1
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one connected push subscriber. Its send channel holds a single
// pending frame: when the client is slower than the snapshot rate, stale
// frames are replaced rather than queued.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans the snapshot out to connected websocket clients. No backpressure
// reaches the upstream side; a slow client only ever delays its own frames.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	clients    map[*client]struct{}
	logger     *slog.Logger
}

// NewHub creates a Hub. Run must be started before the first broadcast.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 1),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
		logger:     logger,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			metrics.EgressClients.Set(0)
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			metrics.EgressClients.Set(float64(len(h.clients)))
			h.logger.Debug("push client connected", "client", c.id, "total", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			metrics.EgressClients.Set(float64(len(h.clients)))
			h.logger.Debug("push client disconnected", "client", c.id, "total", len(h.clients))

		case msg := <-h.broadcast:
			for c := range h.clients {
				offer(c.send, msg)
			}
		}
	}
}

// Publish hands the latest snapshot frame to the hub. Never blocks: if a
// previous frame is still pending it is replaced.
func (h *Hub) Publish(msg []byte) {
	offer(h.broadcast, msg)
}

// offer replaces the pending frame in a 1-slot channel with msg.
func offer(ch chan []byte, msg []byte) {
	select {
	case ch <- msg:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- msg:
		default:
		}
	}
}

// ServeWS upgrades the request and attaches the client to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientSendSize),
	}
	h.register <- c

	go h.writePump(c)
	go h.readPump(c)
}

// writePump drains the send channel onto the socket.
func (h *Hub) writePump(c *client) {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.drop(c)
			// Drain until the hub closes the channel.
			for range c.send {
			}
			return
		}
	}
}

// drop hands a client back to the hub for removal, unless the hub has
// already stopped.
func (h *Hub) drop(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// readPump discards inbound frames and detects the peer going away.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}
