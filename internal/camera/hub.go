package camera

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ShellAddicted/wsCamera/internal/logger"
	"github.com/ShellAddicted/wsCamera/internal/metrics"
)

const (
	clientBuffer = 2
	writeTimeout = 5 * time.Second
)

type client struct {
	id   int
	conn *websocket.Conn
	send chan []byte
	done chan struct{} // closed when the writer exits
}

// Hub accepts WebSocket clients and writes every broadcast frame to each
// of them as one binary message. A client that cannot keep up misses
// frames instead of slowing the others down.
type Hub struct {
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics

	mu      sync.Mutex
	clients map[int]*client
	nextID  int
	closed  bool
}

// NewHub creates a hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	if m == nil {
		m = metrics.NewSource()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Any page may embed the camera
			},
		},
		metrics: m,
		clients: make(map[int]*client),
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects or a write to it fails.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Hub", "WebSocket upgrade failed: %v", err)
		return
	}

	c, ok := h.register(conn)
	if !ok {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	logger.Info("Hub", "Client #%d connected from %s", c.id, r.RemoteAddr)

	go h.writeLoop(c)

	// Clients have nothing to say; reading only detects the disconnect.
	conn.SetReadLimit(512)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.unregister(c)
	<-c.done
	_ = conn.Close()
	logger.Info("Hub", "Client #%d disconnected", c.id)
}

func (h *Hub) register(conn *websocket.Conn) (*client, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, false
	}

	c := &client{
		id:   h.nextID,
		conn: conn,
		send: make(chan []byte, clientBuffer),
		done: make(chan struct{}),
	}
	h.nextID++
	h.clients[c.id] = c

	h.metrics.TotalClients.Add(1)
	h.metrics.ActiveClients.Store(uint64(len(h.clients)))
	return c, true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.id]; !ok {
		return
	}
	close(c.send)
	delete(h.clients, c.id)
	h.metrics.ActiveClients.Store(uint64(len(h.clients)))
}

func (h *Hub) writeLoop(c *client) {
	defer close(c.done)

	for frame := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			h.metrics.WriteErrors.Add(1)
			logger.Warn("Hub", "Write to client #%d failed: %v", c.id, err)
			// Unblocks the read loop, which unregisters the client
			_ = c.conn.Close()
			for range c.send {
			}
			return
		}
		h.metrics.FramesSent.Add(1)
	}
}

// Broadcast queues frame for every connected client.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.clients {
		select {
		case c.send <- frame:
		default:
			logger.Debug("Hub", "Client #%d too slow, frame skipped", c.id)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Run broadcasts frames from q until ctx is done, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context, q *Queue) error {
	defer h.Close()

	for {
		frame, err := q.Get(ctx)
		if err != nil {
			return nil
		}
		h.Broadcast(frame)
	}
}

// Close sends a going-away close frame to every client and refuses new
// ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c.conn)
	}
	h.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}
}
