package api

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is one market data message pushed over the websocket stream.
// Type is "deal", "cancel" or "phase".
type Event struct {
	Type         string `json:"type"`
	InstrumentID uint32 `json:"instrument_id,omitempty"`
	Payload      any    `json:"payload"`
}

// Hub maintains active websocket connections and fans events out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]bool)}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends ev to every connected client. Slow clients are skipped
// rather than allowed to stall the stream.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

func (c *client) writePump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	// The stream is one-way; incoming frames are drained only to detect
	// disconnects.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
