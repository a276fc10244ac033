package bridge

import (
	"sync"

	"github.com/codefionn/agentbridge/internal/logger"
	"github.com/codefionn/agentbridge/internal/protocol"
)

// Hub maintains the set of active clients and fans broadcast events
// out to all of them. It keeps no history: an event published before a
// client connects is never delivered to it, and failed sends are not
// retried.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	broadcast  chan *protocol.BroadcastEvent
	register   chan *Client
	unregister chan *Client

	stop     chan struct{}
	stopOnce sync.Once
	log      *logger.Logger
}

// NewHub creates a hub.
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Global()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *protocol.BroadcastEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		log:        log.WithPrefix("hub"),
	}
}

// Run starts the hub's event loop.
func (h *Hub) Run() {
	h.log.Info("Broadcast hub started")
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case event := <-h.broadcast:
			h.broadcastEvent(event)
		case <-h.stop:
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	h.log.Info("Client registered: %s (total: %d)", client.ID, len(h.clients))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		h.log.Info("Client unregistered: %s (total: %d)", client.ID, len(h.clients))
	}
}

// broadcastEvent writes one copy of the event to every connected
// client. A client whose send buffer is full is treated as dead and
// closed; the event is simply lost for it.
func (h *Hub) broadcastEvent(event *protocol.BroadcastEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			h.log.Warn("Send buffer full for client %s, closing connection", client.ID)
			// Close from a separate goroutine: Stop unregisters through
			// this loop, which is busy fanning out right here.
			go client.Close()
		}
	}
}

// RegisterClient adds a client (called from the client goroutine).
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.stop:
	}
}

// UnregisterClient removes a client (called from the client goroutine).
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// Publish queues an event for fan-out. It never blocks; when the hub
// is saturated the event is dropped, matching the fire-and-forget
// broadcast contract.
func (h *Hub) Publish(event *protocol.BroadcastEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn("Broadcast queue full, dropping %s event", event.Type)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown stops the loop and closes all client connections.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.stop)

		h.mu.RLock()
		clients := make([]*Client, 0, len(h.clients))
		for client := range h.clients {
			clients = append(clients, client)
		}
		h.mu.RUnlock()

		for _, client := range clients {
			client.Close()
		}
	})
}
