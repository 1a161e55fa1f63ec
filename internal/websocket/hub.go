package websocket

import (
	"log"
	"sync"
)

// Hub tracks the live connection per desk. A desk device holds one
// connection; a reconnect displaces the previous one.
type Hub struct {
	// Registered clients map: DeskID -> Client
	clients map[uint]*Client

	// Register requests
	register chan *Client

	// Unregister requests
	unregister chan *Client

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[uint]*Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.DeskID]; ok {
				// Device reconnected; the stale connection tears itself
				// down once its read pump sees the close
				old.conn.Close()
			}
			h.clients[client.DeskID] = client
			h.mu.Unlock()
			log.Printf("📺 Desk %d connected", client.DeskID)

		case client := <-h.unregister:
			h.mu.Lock()
			// The send channel stays open; both pumps exit off the closed
			// connection, so nothing can write to a closed channel
			if current, ok := h.clients[client.DeskID]; ok && current == client {
				delete(h.clients, client.DeskID)
				log.Printf("📴 Desk %d disconnected", client.DeskID)
			}
			h.mu.Unlock()
		}
	}
}

// Connected reports whether a desk currently has a live connection
func (h *Hub) Connected(deskID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[deskID]
	return ok
}

// ConnectedDesks lists desks with a live connection
func (h *Hub) ConnectedDesks() []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]uint, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}
