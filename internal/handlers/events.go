package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is a message pushed to connected websocket clients
type Event struct {
	Type      string      `json:"type"`
	UploadID  string      `json:"uploadId,omitempty"`
	Content   interface{} `json:"content,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// EventHub broadcasts upload lifecycle events to websocket subscribers
type EventHub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
}

// NewEventHub creates an event hub that accepts connections from the given
// origins. An empty list allows all origins.
func NewEventHub(allowedOrigins []string) *EventHub {
	return &EventHub{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, allowed := range allowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// ServeWS upgrades the connection and keeps it registered until it closes
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade websocket connection: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	// Drain incoming messages; the hub is broadcast-only
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends an event to all connected clients, dropping any that fail
func (h *EventHub) Broadcast(eventType, uploadID string, content interface{}) {
	event := Event{
		Type:      eventType,
		UploadID:  uploadID,
		Content:   content,
		Timestamp: time.Now().Unix(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("Failed to send event to client: %v", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *EventHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[conn] {
		conn.Close()
		delete(h.clients, conn)
	}
}
