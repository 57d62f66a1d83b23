// Package stream pushes published snapshots to websocket clients.
package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/blindspot/internal/monitor"
)

const (
	// MessageSnapshot carries a published monitor.Snapshot.
	MessageSnapshot = "snapshot"
	// MessagePing is sent periodically so idle proxies keep the connection.
	MessagePing = "ping"

	sendBuffer   = 16
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Message is the envelope written to clients.
type Message struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   *monitor.Snapshot `json:"payload,omitempty"`
}

type client struct {
	id     string
	send   chan Message
	cancel context.CancelFunc
}

// Hub fans snapshots out to every connected client. A client whose buffer
// is full misses the message rather than stalling the monitor.
type Hub struct {
	logger  log.Logger
	origins []string
	metrics *Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}
	last    *monitor.Snapshot
	closed  bool
}

// NewHub creates a hub. origins are host patterns accepted in the Origin
// header in addition to same-host requests. metrics may be nil.
func NewHub(logger log.Logger, origins []string, metrics *Metrics) *Hub {
	if logger == nil {
		logger = log.Nop()
	}
	return &Hub{
		logger:  logger,
		origins: origins,
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

// Publish implements monitor.Publisher.
func (h *Hub) Publish(ctx context.Context, snap *monitor.Snapshot) {
	msg := Message{Type: MessageSnapshot, Timestamp: time.Now().UTC(), Payload: snap}

	h.mu.Lock()
	h.last = snap
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			if h.metrics != nil {
				h.metrics.DroppedTotal.Inc()
			}
			h.logger.Warn(ctx, "client send buffer full, dropping snapshot", "client_id", c.id, "cycle_id", snap.CycleID)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		c.cancel()
	}
}

// ServeHTTP upgrades the request and streams snapshots until the client
// goes away or the hub is closed. The latest snapshot is sent on connect.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn(r.Context(), "websocket accept failed", "error", err)
		return
	}

	// reads are not expected; CloseRead handles control frames and cancels on close
	ctx, cancel := context.WithCancel(conn.CloseRead(r.Context()))
	defer cancel()

	c := &client{
		id:     ulid.Make().String(),
		send:   make(chan Message, sendBuffer),
		cancel: cancel,
	}
	if !h.register(c) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unregister(c)

	L := h.logger.With("client_id", c.id)
	L.Info(ctx, "stream client connected", "clients", h.ClientCount())

	err = h.writeLoop(ctx, conn, c)
	switch {
	case err != nil:
		L.Warn(ctx, "stream write failed", "error", err)
		conn.Close(websocket.StatusInternalError, "write failed")
	default:
		conn.Close(websocket.StatusGoingAway, "")
	}
	L.Info(ctx, "stream client disconnected")
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	if h.metrics != nil {
		h.metrics.Clients.Inc()
	}
	if h.last != nil {
		c.send <- Message{Type: MessageSnapshot, Timestamp: time.Now().UTC(), Payload: h.last}
	}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok && h.metrics != nil {
		h.metrics.Clients.Dec()
	}
	delete(h.clients, c)
}

// writeLoop returns nil when ctx ends and the write error otherwise.
func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		var msg Message
		select {
		case <-ctx.Done():
			return nil
		case msg = <-c.send:
		case <-ticker.C:
			msg = Message{Type: MessagePing, Timestamp: time.Now().UTC()}
		}

		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(wctx, conn, msg)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
