package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/Robomon/internal/monitor"
)

const hubWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard clients are served from anywhere on the LAN
	},
}

// SnapshotSource is what the hub follows.
type SnapshotSource interface {
	Snapshot() monitor.Snapshot
	Subscribe() (<-chan struct{}, func())
}

// Hub manages dashboard WebSocket clients and pushes state snapshots to
// them. Writes are serialized; gorilla connections allow one writer.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	log     zerolog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]bool),
		log:     log,
	}
}

// HandleWebSocket upgrades the HTTP connection, registers the client and
// then sends it snapshot(). Registration comes first so a change that lands
// after the snapshot is taken is still pushed by Broadcast.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, snapshot func() any) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	data, err := json.Marshal(snapshot())
	if err != nil {
		delete(h.clients, conn)
		h.mu.Unlock()
		h.log.Error().Err(err).Msg("websocket marshal failed")
		conn.Close()
		return
	}
	if !h.write(conn, data) {
		delete(h.clients, conn)
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	// Read loop keeps the connection alive and notices disconnects.
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Run pushes a snapshot to every client after each change of src, until
// ctx is done or src ends the subscription.
func (h *Hub) Run(ctx context.Context, src SnapshotSource) {
	changes, cancel := src.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			h.Broadcast(src.Snapshot())
		}
	}
}

// Broadcast sends v as JSON to all connected clients.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket marshal failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if !h.write(conn, data) {
			delete(h.clients, conn)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// write must be called with h.mu held. It closes conn on failure.
func (h *Hub) write(conn *websocket.Conn, data []byte) bool {
	conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.log.Debug().Err(err).Msg("websocket write failed")
		conn.Close()
		return false
	}
	return true
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}
